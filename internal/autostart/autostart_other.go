//go:build !windows

package autostart

func (s *Service) read() (string, bool, error) { return "", false, ErrUnsupported }
func (s *Service) write(string) error          { return ErrUnsupported }
func (s *Service) remove() error               { return ErrUnsupported }
