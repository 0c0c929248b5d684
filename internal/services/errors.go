package services

import (
	"errors"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrConflict              = errors.New("conflict")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountDisabled       = errors.New("account disabled")
	ErrEmailNotConfirmed     = errors.New("email not confirmed")
	ErrSessionRevoked        = errors.New("session revoked")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrLastAdmin             = errors.New("at least one admin must remain")
	ErrSelfRoleChange        = errors.New("cannot change own role")
	ErrPasswordResetRequired = errors.New("password reset required")
)

// FieldViolation describes one invalid input field. Message is a locale key
// when Key is true, otherwise a literal message.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Key     bool   `json:"-"`
}

// ValidationError is returned when input is rejected before any state change.
type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldViolation{Field: field, Message: message})
}

func (e *ValidationError) addKey(field, key string) {
	e.Fields = append(e.Fields, FieldViolation{Field: field, Message: key, Key: true})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, message string) error {
	return &ValidationError{Fields: []FieldViolation{{Field: field, Message: message}}}
}

func passwordViolations(field string, keys []string) error {
	verr := &ValidationError{}
	for _, k := range keys {
		verr.addKey(field, k)
	}
	return verr.orNil()
}
