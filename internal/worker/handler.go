package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// JobHandler executes one type of background job.
type JobHandler interface {
	// Type returns the job_type value this handler consumes.
	Type() string

	// Handle executes the job. payload is the raw JSON stored with the job.
	// Return a PermanentError to stop further retries.
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err so the job is not retried.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err wraps a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// DecodePayload unmarshals a job payload. A malformed payload is permanent.
func DecodePayload[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, NewPermanentError(fmt.Errorf("decode payload: %w", err))
	}
	return v, nil
}
