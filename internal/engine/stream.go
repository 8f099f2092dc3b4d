package engine

// textStream delivers an already complete text as a single fragment.
type textStream struct {
	text     string
	consumed bool
}

// TextStream wraps a complete text so it can be consumed like a stream.
func TextStream(text string) Stream {
	return &textStream{text: text}
}

func (s *textStream) Next() bool {
	if s.consumed {
		return false
	}
	s.consumed = true
	return true
}

func (s *textStream) Fragment() string { return s.text }
func (s *textStream) Err() error       { return nil }
func (s *textStream) Close() error     { return nil }
