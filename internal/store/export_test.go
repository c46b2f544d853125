package store

// SetLink replaces the hard-link function used to publish files.
func SetLink(s *FileStore, link func(oldname, newname string) error) {
	s.link = link
}
