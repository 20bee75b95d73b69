package core

// # Error Codes Reference
//
// User-facing messages carry a code that users can quote to support.
//
//	DB001   Duplicate record             "unique key conflict", "duplicate key"
//	DB003   Missing referenced record    "foreign key"
//	DB004   Database unreachable         "connection refused", "dial tcp"
//	DB005   Connection interrupted       "connection reset", "conn closed"
//	DB006   Database timeout             "timeout"
//	DB007   Deadlock                     "deadlock"
//	VAL001  Invalid date                 "unrecognized date", "invalid date"
//	VAL003  Missing policy fields        "missing required fields"
//	VAL006  Invalid gender               "invalid gender"
//	VAL007  Missing query parameter      ErrInvalidInput
//	FILE001 File too large               "file too large", "request body too large"
//	FILE002 Unsupported format           ErrUnsupportedFormat
//	FILE003 Encoding error               "encoding error"
//	FILE004 No file                      "no file provided"
//	FILE005 Empty file                   "empty file"
//	FILE006 Unreadable file              "unreadable file"
//	UPL002  System busy                  ErrTooManyUploads
//	UPL003  Job not found                ErrJobNotFound
//	UPL004  Request cancelled            context.Canceled
//	UPL005  Request timeout              context.DeadlineExceeded
//	UPL006  Worker crashed               "worker exited"
//	QRY001  Nothing found                ErrNotFound
//	RATE001 Rate limited                 "rate limit"
//	ERR000  Anything else

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is the user-facing rendering of an error.
type UserMessage struct {
	Message string // what went wrong, in plain language
	Action  string // what the user can do about it
	Code    string // support reference
}

// sentinelMessages are checked with errors.Is before any text pattern.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrUnsupportedFormat, UserMessage{
		Message: "Unsupported file format",
		Action:  "Upload an .xlsx, .xls or .csv file",
		Code:    "FILE002",
	}},
	{ErrTooManyUploads, UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{ErrJobNotFound, UserMessage{
		Message: "Import job not found",
		Action:  "The job may have expired. Please upload the file again",
		Code:    "UPL003",
	}},
	{ErrConflict, UserMessage{
		Message: "A record with this key already exists",
		Action:  "Please try again",
		Code:    "DB001",
	}},
	{ErrNotFound, UserMessage{
		Message: "No matching records found",
		Action:  "Check the search term and try again",
		Code:    "QRY001",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "UPL005",
	}},
}

// errorPatterns maps lower-case substrings of technical errors to messages.
// Order matters: the first match wins.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	// Database
	{"duplicate key", UserMessage{"A record with this key already exists", "Please try again", "DB001"}},
	{"unique key conflict", UserMessage{"A record with this key already exists", "Please try again", "DB001"}},
	{"foreign key", UserMessage{"A referenced record does not exist", "Check that the user, category and carrier exist", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"dial tcp", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"conn closed", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},

	// Validation
	{"unrecognized date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024", "VAL001"}},
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024", "VAL001"}},
	{"missing required fields", UserMessage{"Policy row is missing required fields", "Fill in policy number, dates, category, company and email", "VAL003"}},
	{"invalid gender", UserMessage{"Invalid gender value", "Use Male, Female or Other", "VAL006"}},

	// File
	{"request body too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"unsupported file format", UserMessage{"Unsupported file format", "Upload an .xlsx, .xls or .csv file", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to upload", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a file with data rows", "FILE005"}},
	{"unreadable file", UserMessage{"The file could not be read", "Check that the file is not corrupted or password protected", "FILE006"}},

	// Jobs
	{"worker exited", UserMessage{"The import stopped unexpectedly", "Please upload the file again", "UPL006"}},

	// Rate limiting
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// invalidInputMessage applies to ErrInvalidInput when no more specific pattern matched.
var invalidInputMessage = UserMessage{
	Message: "A required parameter is missing or invalid",
	Action:  "Check the request parameters",
	Code:    "VAL007",
}

// defaultMessage is returned when nothing matches (ERR000).
// Support staff should check application logs for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Sentinel errors are matched first, then known text patterns
// (case-insensitive). Unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.Is(err, ErrInvalidInput) {
		return invalidInputMessage
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown to users.
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

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
