package repository

import "errors"

var (
	// ErrRepositoryUnavailable indicates the corpus store could not be reached
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrUnsupportedDriver indicates a database driver this package does not register
	ErrUnsupportedDriver = errors.New("unsupported corpus driver")
)
