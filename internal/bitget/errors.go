package bitget

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrRateBudget   = errors.New("rate limit budget exhausted")
	ErrStreamClosed = errors.New("stream closed")
)

// APIError is a non-success exchange response envelope.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitget error: %s - %s (http %d)", e.Code, e.Message, e.HTTPStatus)
}

// Exchange error codes for signature, key, and timestamp problems.
// Any of these means the session credentials or clock are unusable:
// trading must halt rather than keep submitting.
var authCodes = map[string]struct{}{
	"40001": {}, // ACCESS_KEY empty
	"40002": {}, // ACCESS_SIGN empty
	"40003": {}, // signature error
	"40005": {}, // invalid ACCESS_TIMESTAMP
	"40006": {}, // invalid ACCESS_KEY
	"40008": {}, // request timestamp expired
	"40009": {}, // sign signature error
	"40037": {}, // api key does not exist
}

// IsAuth reports whether the error is an authentication failure.
func IsAuth(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	_, ok := authCodes[apiErr.Code]
	return ok
}

// IsTransient reports whether the error is worth retrying with backoff:
// network failures, throttling, and exchange-side 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatus == 429 || apiErr.HTTPStatus >= 500 {
			return true
		}
		// 30007: request over limit, 40200: server upgrading
		return apiErr.Code == "30007" || apiErr.Code == "40200"
	}
	return false
}

// IsRejection reports whether the error is a terminal per-order
// rejection (invalid parameters, insufficient balance, and similar).
// Only that order is affected; trading continues.
func IsRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return !IsAuth(err) && !IsTransient(err)
}
