package domain

import (
	"errors"
	"fmt"
)

// Fallos de etapa del pipeline: terminales para el trabajo, sin reintento.
var (
	ErrUnrecognizedFormat = errors.New("unrecognized format")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrSanitizationFailed = errors.New("sanitization failed")
)

// Fallos transitorios del motor de inferencia externo: se reintentan
// localmente hasta agotar el presupuesto.
var (
	ErrRateLimited           = errors.New("rate limited")
	ErrInferenceTimeout      = errors.New("inference timeout")
	ErrInferenceServiceError = errors.New("inference service error")
)

// ErrInvalidResponseShape indica una violacion de contrato del motor
// externo. Nunca se reintenta.
var ErrInvalidResponseShape = errors.New("invalid response shape")

// ValidationError es un problema de entrada corregible por el usuario.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError construye un ValidationError con campo y motivo.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// MalformedInputError marca donde se rompio el parseo.
type MalformedInputError struct {
	Line   int
	Offset int64
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed input at offset %d: %s", e.Offset, e.Reason)
}
