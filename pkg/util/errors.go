// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotConnected      = errors.New("store not connected")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrValidationFailed  = errors.New("validation failed")
	ErrInUse             = errors.New("resource in use")
	ErrDependencyMissing = errors.New("required dependency missing")
	ErrAllocation        = errors.New("resource allocation failed")
	ErrMalformedIntent   = errors.New("malformed route intent")
	ErrUnknownEndpoint   = errors.New("unknown endpoint")
	ErrLocked            = errors.New("locked by another holder")
)

// ResourceAllocationError reports a failed ASIC object create or delete.
// Pools return it without having mutated their own state.
type ResourceAllocationError struct {
	Operation string // "create", "remove", "set"
	Object    string // SAI object type or pool name
	Key       string
	Err       error
}

func (e *ResourceAllocationError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Operation, e.Object)
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrAllocation and the backend error.
func (e *ResourceAllocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAllocation}
	}
	return []error{ErrAllocation, e.Err}
}

// NewResourceAllocationError creates an allocation error
func NewResourceAllocationError(operation, object, key string, err error) *ResourceAllocationError {
	return &ResourceAllocationError{
		Operation: operation,
		Object:    object,
		Key:       key,
		Err:       err,
	}
}

// MalformedIntentError rejects a route intent before any resource is touched.
type MalformedIntentError struct {
	Route   string
	Reasons []string
}

func (e *MalformedIntentError) Error() string {
	if len(e.Reasons) == 1 {
		return fmt.Sprintf("malformed intent for %s: %s", e.Route, e.Reasons[0])
	}
	return fmt.Sprintf("malformed intent for %s:\n  - %s", e.Route, strings.Join(e.Reasons, "\n  - "))
}

func (e *MalformedIntentError) Unwrap() error {
	return ErrMalformedIntent
}

// NewMalformedIntentError creates a malformed-intent error
func NewMalformedIntentError(route string, reasons ...string) *MalformedIntentError {
	return &MalformedIntentError{Route: route, Reasons: reasons}
}

// UnknownEndpointError is returned for health notifications that reference
// a session nothing is tracking.
type UnknownEndpointError struct {
	Session string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("no tracked monitor session %s", e.Session)
}

func (e *UnknownEndpointError) Unwrap() error {
	return ErrUnknownEndpoint
}

// NewUnknownEndpointError creates an unknown-endpoint error
func NewUnknownEndpointError(session string) *UnknownEndpointError {
	return &UnknownEndpointError{Session: session}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// BuildIntent returns the accumulated messages as a MalformedIntentError for
// route, or nil if nothing was recorded.
func (v *ValidationBuilder) BuildIntent(route string) error {
	if len(v.errors) == 0 {
		return nil
	}
	return &MalformedIntentError{Route: route, Reasons: v.errors}
}

// DependencyError represents a missing dependency
type DependencyError struct {
	Resource      string
	DependsOn     string
	DependsOnType string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s requires %s '%s' to exist", e.Resource, e.DependsOnType, e.DependsOn)
}

func (e *DependencyError) Unwrap() error {
	return ErrDependencyMissing
}

// NewDependencyError creates a dependency error
func NewDependencyError(resource, dependsOnType, dependsOn string) *DependencyError {
	return &DependencyError{
		Resource:      resource,
		DependsOn:     dependsOn,
		DependsOnType: dependsOnType,
	}
}

// InUseError represents a resource that cannot be modified because it's in use
type InUseError struct {
	Resource string
	UsedBy   []string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s is in use by: %s", e.Resource, strings.Join(e.UsedBy, ", "))
}

func (e *InUseError) Unwrap() error {
	return ErrInUse
}

// NewInUseError creates an in-use error
func NewInUseError(resource string, usedBy ...string) *InUseError {
	return &InUseError{
		Resource: resource,
		UsedBy:   usedBy,
	}
}
