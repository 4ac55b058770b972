package catalog

import "errors"

var (
	ErrNotFound          = errors.New("product not found")
	ErrAlreadyExists     = errors.New("product already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAccessDenied means the store rejected the call for permission or
	// configuration reasons; retrying will not help.
	ErrAccessDenied = errors.New("catalog access denied")
)
