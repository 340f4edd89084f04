package core

// error_messages.go maps technical errors to user-friendly messages with codes
// for support reference. Users quote the code; support looks it up here.
//
// # Usage Errors (USE001-USE099)
//
//	USE001 - Missing keys: No key fields were given
//	         Action: Pass -k with field numbers or -K with header labels
//	         Patterns: "key fields must be specified"
//
//	USE002 - Invalid field list: A field list could not be parsed
//	         Action: Use 1-based numbers and ranges, e.g. 1,3-5
//	         Patterns: "invalid field list"
//
//	USE003 - Unknown label: A label is not present in the header line
//	         Action: Check the spelling against the first line of the input
//	         Patterns: "label not found"
//
//	USE004 - Invalid index: A field index is negative
//	         Action: Field numbers start at 1
//	         Patterns: "invalid field index"
//
//	USE005 - Invalid delimiter: The delimiter escape could not be decoded
//	         Patterns: "invalid delimiter"
//
//	USE006 - Invalid parameter: A request parameter has an invalid value
//	         Patterns: "parameter"
//
//	USE007 - Unknown format: The output format is not supported
//	         Patterns: "unknown format"
//
// # Input Errors (IN001-IN099)
//
//	IN001 - Truncated input: The header line could not be read
//	        Action: Provide input with a header line or drop label options
//	        Patterns: "unexpected end of file"
//
//	IN002 - Unreadable file: An input file could not be opened
//	        Action: Check the path and permissions
//	        Patterns: "no such file", "permission denied", "open input"
//
//	IN003 - Malformed number: A sum or average field is not numeric
//	        Action: Fix the value or run without strict mode
//	        Patterns: "malformed number"
//
// # Allocation Errors (MEM001-MEM099)
//
//	MEM001 - Line too long: A line exceeds the configured buffer limit
//	         Action: Raise AGG_MAX_LINE_BYTES
//	         Patterns: "line exceeds buffer limit"
//
//	MEM002 - Table full: Too many distinct keys
//	         Action: Raise AGG_MAX_GROUPS or use fewer key fields
//	         Patterns: "failed to store value"
//
// # Service Errors (SRV001-SRV099)
//
//	SRV001 - Body too large: Request body exceeds the configured limit
//	         Patterns: "request body too large"
//
//	SRV002 - System busy: Too many aggregations in progress
//	         Patterns: "too many concurrent aggregations"
//
//	SRV003 - Cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	SRV004 - Timeout: Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Sink Errors (SNK001-SNK099)
//
//	SNK001 - Database unavailable: Results could not be written to PostgreSQL
//	         Patterns: "connection refused", "postgres sink"
//
//	SNK002 - Parquet write failed
//	         Patterns: "parquet"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Usage Errors (USE001-USE007)
	// =========================================================================
	{
		pattern: "key fields must be specified",
		msg: UserMessage{
			Message: "No key fields were given",
			Action:  "Pass -k with field numbers or -K with header labels",
			Code:    "USE001",
		},
	},
	{
		pattern: "invalid field list",
		msg: UserMessage{
			Message: "A field list could not be parsed",
			Action:  "Use 1-based numbers and ranges, e.g. 1,3-5",
			Code:    "USE002",
		},
	},
	{
		pattern: "label not found",
		msg: UserMessage{
			Message: "A label is not present in the header line",
			Action:  "Check the spelling against the first line of the input",
			Code:    "USE003",
		},
	},
	{
		pattern: "invalid field index",
		msg: UserMessage{
			Message: "A field index is negative",
			Action:  "Field numbers start at 1",
			Code:    "USE004",
		},
	},
	{
		pattern: "invalid delimiter",
		msg: UserMessage{
			Message: "The delimiter could not be decoded",
			Action:  "Use a literal string or an escape such as \\t or \\xfe",
			Code:    "USE005",
		},
	},
	{
		pattern: "unknown format",
		msg: UserMessage{
			Message: "The output format is not supported",
			Action:  "Use --format text, json or parquet",
			Code:    "USE007",
		},
	},
	{
		pattern: "parameter",
		msg: UserMessage{
			Message: "A request parameter has an invalid value",
			Action:  "Boolean parameters accept true, false, 1 or 0",
			Code:    "USE006",
		},
	},

	// =========================================================================
	// Input Errors (IN001-IN003)
	// =========================================================================
	{
		pattern: "unexpected end of file",
		msg: UserMessage{
			Message: "The header line could not be read",
			Action:  "Provide input with a header line or drop label options",
			Code:    "IN001",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "An input file could not be opened",
			Action:  "Check the path and permissions",
			Code:    "IN002",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "An input file could not be opened",
			Action:  "Check the path and permissions",
			Code:    "IN002",
		},
	},
	{
		pattern: "open input",
		msg: UserMessage{
			Message: "An input file could not be opened",
			Action:  "Check the path and permissions",
			Code:    "IN002",
		},
	},
	{
		pattern: "malformed number",
		msg: UserMessage{
			Message: "A sum or average field is not numeric",
			Action:  "Fix the value or run without strict mode",
			Code:    "IN003",
		},
	},

	// =========================================================================
	// Allocation Errors (MEM001-MEM002)
	// =========================================================================
	{
		pattern: "line exceeds buffer limit",
		msg: UserMessage{
			Message: "A line exceeds the configured buffer limit",
			Action:  "Raise AGG_MAX_LINE_BYTES",
			Code:    "MEM001",
		},
	},
	{
		pattern: "failed to store value",
		msg: UserMessage{
			Message: "Too many distinct keys",
			Action:  "Raise AGG_MAX_GROUPS or use fewer key fields",
			Code:    "MEM002",
		},
	},

	// =========================================================================
	// Service Errors (SRV001-SRV004)
	// =========================================================================
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "Request body exceeds the configured limit",
			Action:  "Split the input into smaller requests",
			Code:    "SRV001",
		},
	},
	{
		pattern: "too many concurrent aggregations",
		msg: UserMessage{
			Message: "Too many aggregations in progress",
			Action:  "Please wait a moment and try again",
			Code:    "SRV002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "SRV003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Send a smaller input or try again later",
			Code:    "SRV004",
		},
	},

	// =========================================================================
	// Sink Errors (SNK001-SNK002)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Results could not be written to PostgreSQL",
			Action:  "Check DATABASE_URL and that the server is running",
			Code:    "SNK001",
		},
	},
	{
		pattern: "postgres sink",
		msg: UserMessage{
			Message: "Results could not be written to PostgreSQL",
			Action:  "Check DATABASE_URL and the target table",
			Code:    "SNK001",
		},
	},
	{
		pattern: "parquet",
		msg: UserMessage{
			Message: "Results could not be written as Parquet",
			Action:  "Check the output path and free disk space",
			Code:    "SNK002",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first case-insensitive pattern match, or ERR000.
//
// Example:
//
//	msg := MapError(core.ErrMissingKeys)
//	// msg.Code == "USE001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern, as opposed to the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. The technical error stays reachable
// through errors.Is and errors.As.
//
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
