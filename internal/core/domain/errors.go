package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials indicates wrong email/password combination
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrVersionConflict indicates a concurrent writer saved the connection
	// record first; the caller must reload and retry
	ErrVersionConflict = errors.New("connection state version conflict")

	// ErrReauthorizationRequired indicates no valid access token can be
	// produced - the admin must run the authorization flow again
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// ErrSetupNeeded indicates provider app credentials are missing or
	// incomplete, so the authorization flow cannot even start
	ErrSetupNeeded = errors.New("provider setup needed")
)
