package domain

import "errors"

// Business rejections. Handlers map these to an apology page and status code;
// anything else is a server error.
var (
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	ErrSamePassword       = errors.New("new password matches the current one")
	ErrUserNotFound       = errors.New("user not found")
)
