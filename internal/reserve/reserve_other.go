//go:build !linux && !darwin

package reserve

func reserve(uintptr, uintptr) (*Region, error) { return nil, ErrUnsupported }

func commit([]byte) error { return ErrUnsupported }

func decommit([]byte) error { return ErrUnsupported }

func release([]byte) error { return ErrUnsupported }
