package services

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks faults talking to the operational store.
	// Callers treat it as transient.
	ErrSourceUnavailable = errors.New("operational store unavailable")

	// ErrUnresolvedReference is recorded on entries whose record was skipped
	// because a referenced business key is not in the analytical store yet.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrMalformedKey is recorded on entries whose primary_key_value is not a
	// well-formed integer id.
	ErrMalformedKey = errors.New("malformed primary key value")
)

// TargetWriteError is a store-level fault while upserting into the
// analytical store.
type TargetWriteError struct {
	Table string
	Key   int64
	Err   error
}

func (e *TargetWriteError) Error() string {
	if e.Key == 0 {
		return fmt.Sprintf("analytical store %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("upserting %s id=%d: %v", e.Table, e.Key, e.Err)
}

func (e *TargetWriteError) Unwrap() error {
	return e.Err
}

// faultKey returns the record a store fault is attributed to. Faults not
// tied to one record, such as an unreachable store, report false.
func faultKey(err error) (int64, bool) {
	var werr *TargetWriteError
	if !errors.As(err, &werr) || werr.Key == 0 {
		return 0, false
	}
	return werr.Key, true
}
