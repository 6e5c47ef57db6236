package skhub

import "errors"

// Sentinel errors for model loading operations.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrInvalidArgument indicates a serialization method other than
	// joblib or pickle.
	ErrInvalidArgument = errors.New("skhub: serialization method must be 'joblib' or 'pickle'")

	// ErrInvalidRef indicates a model reference without a repository id
	// or filename.
	ErrInvalidRef = errors.New("skhub: invalid model reference")

	// ErrConfig indicates an invalid configuration file.
	ErrConfig = errors.New("skhub: invalid configuration")
)
