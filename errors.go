package protect

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEngine indicates a Client was constructed without an Engine.
	ErrNoEngine = errors.New("protect: no engine configured")

	// ErrEngineClosed indicates an engine or engine client was used after Close().
	ErrEngineClosed = errors.New("protect: engine is closed")

	// ErrInvalidMasterKey indicates the local engine master key is not exactly 32 bytes.
	ErrInvalidMasterKey = errors.New("protect: master key must be 32 bytes")

	// ErrConfigRejected indicates the engine rejected the encrypt configuration
	// (malformed JSON or an unsupported version tag).
	ErrConfigRejected = errors.New("protect: engine rejected encrypt configuration")

	// ErrUnknownColumn indicates the engine was asked to encrypt a column that
	// is not present in the encrypt configuration it was created with.
	ErrUnknownColumn = errors.New("protect: column not present in encrypt configuration")

	// ErrDecryptionFailed indicates ciphertext authentication failed
	// (wrong key, wrong context, or corrupted data).
	ErrDecryptionFailed = errors.New("protect: decryption failed")

	// ErrInvalidCiphertext indicates the ciphertext framing is malformed.
	ErrInvalidCiphertext = errors.New("protect: invalid ciphertext format")

	// ErrDecompressionFailed indicates zstd decompression of a sealed payload failed.
	ErrDecompressionFailed = errors.New("protect: decompression failed")

	// ErrUnsupportedCompression indicates an unsupported compression algorithm.
	ErrUnsupportedCompression = errors.New("protect: unsupported compression algorithm")
)

// ValidationError reports malformed caller input: bad field syntax, invalid
// option values, an invalid envelope, a table identity mismatch, or a result
// count mismatch after a bulk engine call. It is raised before any engine
// round trip wherever possible.
type ValidationError struct {
	// Reason is a human-readable description of the failure.
	Reason string

	// Field names the offending field or column, when one is known.
	Field string

	// Expected and Actual carry the item counts for bulk result mismatches.
	// Both are zero for other validation failures.
	Expected int
	Actual   int
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("protect: validation: %s: %s", e.Field, e.Reason)
	}
	return "protect: validation: " + e.Reason
}

func validationErrf(field, format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), Field: field}
}

// ConversionError reports a failed conversion between an application value and
// its wire string or JSON representation, or an unrecognized cast tag.
type ConversionError struct {
	// Reason is a human-readable description of the failure.
	Reason string

	// CastAs is the wire data type the conversion targeted, when known.
	CastAs DataType

	// Err is the underlying parse or encode error, when one exists.
	Err error
}

func (e *ConversionError) Error() string {
	msg := "protect: conversion: " + e.Reason
	if e.CastAs != "" {
		msg = fmt.Sprintf("protect: conversion to %s: %s", e.CastAs, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

func conversionErrf(castAs DataType, err error, format string, args ...any) error {
	return &ConversionError{Reason: fmt.Sprintf(format, args...), CastAs: castAs, Err: err}
}

// EncryptError wraps an engine failure raised during an encrypt operation.
type EncryptError struct {
	// Reason describes the stage that failed.
	Reason string

	// Err is the engine's own failure.
	Err error
}

func (e *EncryptError) Error() string {
	return fmt.Sprintf("protect: encrypt: %s: %v", e.Reason, e.Err)
}

func (e *EncryptError) Unwrap() error { return e.Err }

// DecryptError wraps an engine failure raised during a decrypt operation.
type DecryptError struct {
	// Reason describes the stage that failed.
	Reason string

	// Err is the engine's own failure.
	Err error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("protect: decrypt: %s: %v", e.Reason, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// SearchTermError wraps an engine failure raised during search term creation.
type SearchTermError struct {
	// Reason describes the stage that failed.
	Reason string

	// Err is the engine's own failure.
	Err error
}

func (e *SearchTermError) Error() string {
	return fmt.Sprintf("protect: create search terms: %s: %v", e.Reason, e.Err)
}

func (e *SearchTermError) Unwrap() error { return e.Err }
