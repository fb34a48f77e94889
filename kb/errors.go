// CLAUDE:SUMMARY Sentinel errors for the kb service.
package kb

import "errors"

// ErrInvalidInput is returned when user input fails validation.
var ErrInvalidInput = errors.New("kb: invalid input")

// ErrNotConfigured is returned when an operation needs an unconfigured
// external collaborator (search provider, channel API).
var ErrNotConfigured = errors.New("kb: collaborator not configured")
