package trace

// SetMaxHops overrides the loader hop limit.
func SetMaxHops(s *Service, n int) { s.maxHops = n }
