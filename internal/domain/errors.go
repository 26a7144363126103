package domain

import (
	"errors"
	"strconv"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// FetchError represents one failed upstream fetch attempt. The poll loop
// retries naturally on its next tick, so every FetchError is retriable.
type FetchError struct {
	URL    string
	Status int // HTTP status if one was received, 0 otherwise
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return "fetch " + e.URL + ": status " + strconv.Itoa(e.Status) + ": " + e.Err.Error()
	}
	return "fetch " + e.URL + ": " + e.Err.Error()
}

func (e *FetchError) IsRetriable() bool {
	return true
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a FetchError for a failed upstream attempt
func NewFetchError(url string, status int, err error) *FetchError {
	return &FetchError{URL: url, Status: status, Err: err}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrUpstreamStatus is returned when the quote API answers with a non-200 status
	ErrUpstreamStatus = errors.New("unexpected upstream status")

	// ErrMalformedPayload is returned when the response body cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNoData is returned when the response decodes but carries no quote data
	ErrNoData = errors.New("no quote data in response")
)
