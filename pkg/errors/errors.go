// Unified error handling for the arc welder
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// G-code parsing errors
	ErrGCodeParse        ErrorCode = "GCODE_PARSE"
	ErrGCodeInvalidParam ErrorCode = "GCODE_INVALID_PARAM"

	// Run errors
	ErrIO        ErrorCode = "IO"
	ErrCancelled ErrorCode = "CANCELLED"
	ErrRuntime   ErrorCode = "RUNTIME"
)

// WeldError is the unified error type for the welder
type WeldError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Line is the 1-based input line number (0 when not tied to a line)
	Line int

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *WeldError) Error() string {
	switch {
	case e.Option != "":
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Option, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("[%s:line %d] %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *WeldError) Unwrap() error {
	return e.Err
}

// SetLine sets the input line number
func (e *WeldError) SetLine(line int) *WeldError {
	e.Line = line
	return e
}

// SetOption sets the config option
func (e *WeldError) SetOption(option string) *WeldError {
	e.Option = option
	return e
}

// New creates a new WeldError
func New(code ErrorCode, message string) *WeldError {
	return &WeldError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *WeldError {
	return &WeldError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Config errors

// ConfigValidationError creates an error for an option that failed validation
func ConfigValidationError(option string, reason string) *WeldError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s': %s", option, reason)).
		SetOption(option)
}

// ConfigOptionError wraps a failure to read an option from a config source
func ConfigOptionError(option string, err error) *WeldError {
	return Wrap(err, ErrConfigOption, fmt.Sprintf("option '%s': %v", option, err)).
		SetOption(option)
}

// G-code errors

// GCodeParseError creates an error for a line that could not be parsed
func GCodeParseError(line string, reason string) *WeldError {
	return New(ErrGCodeParse, fmt.Sprintf("failed to parse G-code: %s (reason: %s)", line, reason))
}

// GCodeInvalidParameterError creates an error for an invalid G-code parameter
func GCodeInvalidParameterError(command, param, value string, reason string) *WeldError {
	return New(ErrGCodeInvalidParam, fmt.Sprintf("G-code command '%s': invalid parameter '%s%s' (%s)", command, param, value, reason))
}

// Run errors

// IOError wraps a read or write failure of the host streams
func IOError(op string, err error) *WeldError {
	return Wrap(err, ErrIO, fmt.Sprintf("%s failed: %v", op, err))
}

// CancelledError wraps a context cancellation observed at the given line
func CancelledError(line int, err error) *WeldError {
	return Wrap(err, ErrCancelled, "run cancelled").SetLine(line)
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *WeldError {
	return New(ErrRuntime, message)
}

// RecoverPanic converts a recovered panic value into an error. It must be
// called directly from a deferred function.
func RecoverPanic(r any) *WeldError {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case runtime.Error:
		return RuntimeError(x.Error())
	case error:
		return RuntimeError(x.Error())
	case string:
		return RuntimeError("panic: " + x)
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if any error in the chain carries the given code
func Is(err error, code ErrorCode) bool {
	var we *WeldError
	for err != nil {
		if !stderrors.As(err, &we) {
			return false
		}
		if we.Code == code {
			return true
		}
		err = we.Err
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigOption) || Is(err, ErrConfigValidation)
}

// IsCancelled checks if error reports a cancelled run
func IsCancelled(err error) bool {
	return Is(err, ErrCancelled)
}
