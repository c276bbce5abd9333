// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cctp

import "fmt"

// Codes carried in application errors returned by attestation handlers.
const (
	ErrCodeMalformedRequest int32 = 400
	ErrCodeRequestDenied    int32 = 403
	ErrCodeSigningFailed    int32 = 500
)

// Error represents a protocol error carried over an application transport.
type Error struct {
	Code    int32
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("cctp error %d: %s", e.Code, e.Message)
}

// AppError is an alias for Error, used by transports for application-level errors.
type AppError = Error
