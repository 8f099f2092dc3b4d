package config

import (
	"fmt"
	"os"
	"time"
)

// KeyInfo is one row of `config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	// Overridden is set when EnvVar currently overrides the file value.
	Overridden bool
}

// ShowAll lists the effective value of every non-secret key.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:        s.key,
			EnvVar:     s.env,
			Value:      fmt.Sprintf("%v", s.extract(cfg)),
			Overridden: s.env != "" && os.Getenv(s.env) != "",
		})
	}
	return result
}

// SetKey validates value and writes it to the config file at Path().
func SetKey(key, value string) error {
	return setKeyAt(Path(), key, value)
}

// UnsetKey removes key from the config file so its default applies again.
func UnsetKey(key string) error {
	return unsetKeyAt(Path(), key)
}

func settable(key string) (keySpec, error) {
	s, ok := lookupSpec(key)
	if !ok {
		return keySpec{}, fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return keySpec{}, fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}
	return s, nil
}

func setKeyAt(path, key, value string) error {
	s, err := settable(key)
	if err != nil {
		return err
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d, ok := v.(time.Duration); ok {
		// TOML has no duration type.
		v = d.String()
	}

	b, err := openFileBackend(path)
	if err != nil {
		return err
	}
	return b.Set(key, v)
}

func unsetKeyAt(path, key string) error {
	if _, err := settable(key); err != nil {
		return err
	}
	b, err := openFileBackend(path)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
