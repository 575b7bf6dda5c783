package services

import "errors"

var (
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrProcessingFailed  = errors.New("error processing PDF")
	ErrInvalidIdentifier = errors.New("invalid document identifier")
	ErrInvalidRequest    = errors.New("invalid request")
)
