// Package domain contains domain errors used throughout the application.
package domain

import "errors"

// Sentinel errors for common error conditions.
var (
	ErrInvalidPath     = errors.New("invalid document path")
	ErrInvalidChange   = errors.New("invalid change shape")
	ErrTransportClosed = errors.New("transport is closed")
)
