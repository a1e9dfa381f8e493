// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"github.com/pkg/errors"
)

// Sentinel errors classifying every failure the dispatcher surfaces. Callers
// wrap these with context and check them with errors.Is.
var (
	// ErrInvalidInput indicates the caller supplied data that fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the requested subscription does not exist within
	// the caller's team scope.
	ErrNotFound = errors.New("not found")

	// ErrTransient indicates an infrastructure failure that is expected to
	// succeed on retry, such as a lost database or broker connection.
	ErrTransient = errors.New("transient failure")

	// ErrDeliveryFailure indicates a webhook endpoint rejected or never
	// received a delivery attempt.
	ErrDeliveryFailure = errors.New("delivery failure")

	// ErrMalformedEvent indicates a bus message that cannot be decoded and
	// must not be redelivered.
	ErrMalformedEvent = errors.New("malformed event")
)

// IsInvalidInput reports whether err is classified as a validation failure.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound reports whether err is classified as a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is classified as retryable infrastructure
// failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsMalformedEvent reports whether err marks an undecodable bus message.
func IsMalformedEvent(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}
