package model

import (
	"encoding/json"
	"fmt"
)

// ValidationError rejects a snapshot, fixture or event list. Raw holds the
// offending source element when it could not be decoded at all.
type ValidationError struct {
	Field  string
	Reason string
	Raw    json.RawMessage
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// StoreError is a failed read or write against the match or job store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// PublishError is a failed publish on a single bus channel.
type PublishError struct {
	Channel string
	Err     error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish %s: %v", e.Channel, e.Err) }
func (e *PublishError) Unwrap() error { return e.Err }

// ConnectionError is a failed send to one live client session.
type ConnectionError struct {
	SessionID string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// FetchError is a failed call to the external source.
type FetchError struct {
	Op         string
	ExternalID string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := "fetch " + e.Op
	if e.ExternalID != "" {
		msg += " " + e.ExternalID
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}
func (e *FetchError) Unwrap() error { return e.Err }
