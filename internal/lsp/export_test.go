package lsp

// Generation reports the current connection generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Session) Malformed(gen uint64, method string, err error) error {
	return s.malformed(gen, method, err)
}
