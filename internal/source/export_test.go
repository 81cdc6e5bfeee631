package source

// SetMaxBodyBytes lowers the response size limit so tests need not serve 256 MiB.
func (s *HTTPTableSource) SetMaxBodyBytes(n int64) {
	s.maxBody = n
}
