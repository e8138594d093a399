package service

import "errors"

var (
	ErrDuplicateName      = errors.New("family name already taken")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrGalleryFull        = errors.New("gallery already holds the maximum number of photos")
)
