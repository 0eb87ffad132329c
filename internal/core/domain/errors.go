package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the sync engine. Errors are caught at the narrowest
// scope that preserves forward progress: record > family > tenant > run.
var (
	// ErrAuthFailed indicates credentials were rejected or the token
	// endpoint was unreachable. Fatal for the tenant, never for siblings.
	ErrAuthFailed = errors.New("tenantsync: authentication failed")

	// ErrPermissionDenied indicates the upstream grant does not cover the
	// requested entity family. The family is skipped, others continue.
	ErrPermissionDenied = errors.New("tenantsync: permission denied")

	// ErrThrottled indicates the upstream throttled the request. Retried
	// with backoff before escalating to an APIError.
	ErrThrottled = errors.New("tenantsync: throttled")

	// ErrTransient indicates a transient server or network failure.
	ErrTransient = errors.New("tenantsync: transient upstream failure")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("tenantsync: not found")

	// ErrInvalidRecord indicates an upstream record failed validation
	// during transformation. The record is skipped and counted; the
	// family continues.
	ErrInvalidRecord = errors.New("tenantsync: invalid record")
)

// APIError is returned when the paginated client exhausts its retries.
// It carries the last observed HTTP status and terminates the current
// entity family's sync for the current tenant only.
type APIError struct {
	// Status is the last HTTP status observed before giving up.
	Status int
	// Endpoint is the request path that failed.
	Endpoint string
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the underlying cause.
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request %s failed after %d attempts (status %d): %v",
		e.Endpoint, e.Attempts, e.Status, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StoreError is returned when an upsert batch fails. The in-flight
// transaction is rolled back; previously committed batches are unaffected.
type StoreError struct {
	// Table is the table being written.
	Table string
	// Err is the underlying cause.
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store write to %s failed: %v", e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
