package config

// ConfigBackend abstracts where persisted settings live. Keys are dotted
// paths such as "ollama.base_url".
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetBool(key string) (val bool, ok bool, err error)
	GetFloat(key string) (val float64, ok bool, err error)
	Set(key string, val any) error
	Delete(key string) error
}
