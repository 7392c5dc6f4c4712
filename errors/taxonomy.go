package errors

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigurationError reports a malformed or missing entity/attribute
// declaration. Raised at configuration load time, never during writes.
type ConfigurationError struct {
	Subject string // entity type or attribute code
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %q: %s", e.Subject, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the given subject.
func NewConfigurationError(subject, format string, args ...interface{}) error {
	return WithStack(&ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, args...)})
}

// ValidationErrors aggregates attribute-level validation failures as a
// field → messages map, so a caller can display all problems at once
// instead of failing on the first one.
type ValidationErrors struct {
	Fields map[string][]string
}

// NewValidationErrors returns an empty, ready-to-fill ValidationErrors.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Fields: make(map[string][]string)}
}

// Add records a validation message for an attribute code.
func (e *ValidationErrors) Add(code, format string, args ...interface{}) {
	e.Fields[code] = append(e.Fields[code], fmt.Sprintf(format, args...))
}

// HasErrors reports whether any field collected a message.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationErrors) Error() string {
	codes := make([]string, 0, len(e.Fields))
	for code := range e.Fields {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var parts []string
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%s: %s", code, strings.Join(e.Fields[code], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// ErrOrNil returns the collection as an error when non-empty, else nil.
func (e *ValidationErrors) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// EntityErrorKind classifies entity operation failures.
type EntityErrorKind string

const (
	EntityNotFound     EntityErrorKind = "not_found"
	EntitySaveFailed   EntityErrorKind = "save_failed"
	EntityDeleteFailed EntityErrorKind = "delete_failed"
	EntityInvalidType  EntityErrorKind = "invalid_type"
)

// EntityError wraps a storage-level failure with the operation context
// (entity type, id) so callers can report which entity was involved.
type EntityError struct {
	Kind     EntityErrorKind
	TypeCode string
	EntityID int64
	Err      error
}

func (e *EntityError) Error() string {
	msg := fmt.Sprintf("entity %s (type=%s, id=%d)", e.Kind, e.TypeCode, e.EntityID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EntityError) Unwrap() error { return e.Err }

// NewEntityError wraps err with entity operation context.
func NewEntityError(kind EntityErrorKind, typeCode string, entityID int64, err error) error {
	return WithStack(&EntityError{Kind: kind, TypeCode: typeCode, EntityID: entityID, Err: err})
}

// SyncError reports an analysis, migration, backup or restore failure,
// carrying the list of operations that failed.
type SyncError struct {
	Stage  string // analyze, backup, generate, validate, execute, restore
	Failed []string
	Err    error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("synchronization failed at %s", e.Stage)
	if len(e.Failed) > 0 {
		msg += " [" + strings.Join(e.Failed, "; ") + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Err }

// NewSyncError wraps err with the sync stage and failed operations.
func NewSyncError(stage string, failed []string, err error) error {
	return WithStack(&SyncError{Stage: stage, Failed: failed, Err: err})
}
