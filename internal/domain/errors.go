package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeDimensionMismatch = "DIMENSION_MISMATCH"
	ErrCodeInvalidEmbedding  = "INVALID_EMBEDDING"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodePersistence       = "PERSISTENCE_FAILURE"
	ErrCodeStageFailure      = "PIPELINE_STAGE_FAILURE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Input validation errors
var (
	ErrEmptyText         = NewDomainError(ErrCodeInvalidInput, "text must be a non-empty string")
	ErrInvalidQuery      = NewDomainError(ErrCodeInvalidInput, "query must be a non-empty string")
	ErrInvalidChunk      = NewDomainError(ErrCodeInvalidInput, "chunk is missing required fields")
	ErrInvalidLimit      = NewDomainError(ErrCodeInvalidInput, "limit must be positive")
	ErrInvalidMemoryKind = NewDomainError(ErrCodeInvalidInput, "unrecognized memory input kind")
)

// Not found errors
var (
	ErrChunkNotFound     = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrWorkspaceNotFound = NewDomainError(ErrCodeNotFound, "research workspace not found")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// NewDimensionMismatchError reports an embedding whose length does not match
// the expected dimension for the configured model.
func NewDimensionMismatchError(expected, actual int) *DomainError {
	return NewDomainError(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, actual))
}

// NewInvalidEmbeddingError reports an embedding containing non-finite values.
func NewInvalidEmbeddingError(index int) *DomainError {
	return NewDomainError(ErrCodeInvalidEmbedding,
		fmt.Sprintf("embedding contains a non-finite value at index %d", index))
}
