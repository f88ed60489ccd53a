package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks a dataset request that could not complete or returned a non-2xx status.
	ErrNetwork = errors.New("dataset request failed")
	// ErrSchema marks a dataset response that did not match the record shape.
	ErrSchema = errors.New("dataset response violates record schema")

	ErrRefreshInFlight      = errors.New("refresh already in flight")
	ErrNoSnapshot           = errors.New("no snapshot available yet")
	ErrNeighborhoodNotFound = errors.New("neighborhood not found")
	ErrInvalidWindow        = errors.New("invalid window")
)

// FetchError reports that both the primary dataset and the fallback dataset failed.
type FetchError struct {
	Dataset         string
	FallbackDataset string
	Primary         error
	Fallback        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch records: primary %s: %v; fallback %s: %v",
		e.Dataset, e.Primary, e.FallbackDataset, e.Fallback)
}

// Unwrap exposes both causes so errors.Is matches ErrNetwork or ErrSchema.
func (e *FetchError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}
