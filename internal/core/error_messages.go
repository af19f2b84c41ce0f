package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// Codes by category:
//
//	DS001   Duplicate file: the exact file was uploaded before
//	DS002   Duplicate name: the dataset name is taken
//	DS003   Not found: no dataset has the requested name
//
//	FILE001 File too large
//	FILE002 Invalid CSV
//	FILE003 Encoding error
//	FILE004 No file provided
//	FILE005 Empty file
//
//	DB001   Connection refused
//	DB002   Connection reset
//	DB003   Deadlock
//	DB004   Unique violation not tied to a dataset name or hash
//
//	UPL001  Too many uploads in progress
//	UPL002  Request cancelled
//	UPL003  Request timed out
//
//	RATE001 Rate limited
//	ERR000  Anything else; check the logs for the technical error
//
// Domain sentinels are matched with errors.Is first. Everything else falls
// back to case-insensitive substring patterns, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrDuplicateFile, UserMessage{
		Message: "This file has already been uploaded",
		Action:  "Use the existing dataset or upload a different file",
		Code:    "DS001",
	}},
	{ErrDuplicateName, UserMessage{
		Message: "A dataset with this name already exists",
		Action:  "Choose a different dataset name",
		Code:    "DS002",
	}},
	{ErrDatasetNotFound, UserMessage{
		Message: "Dataset not found",
		Action:  "Check the dataset name with GET /datasets/",
		Code:    "DS003",
	}},
	{ErrTooManyIngestions, UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or try again later",
		Code:    "UPL003",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is ordered specific before general.
var errorPatterns = []errorPattern{
	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with a header row",
		Code:    "FILE002",
	}},
	{"encoding error", UserMessage{
		Message: "File contains characters that could not be decoded",
		Action:  "Save the file as UTF-8",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was uploaded",
		Action:  "Send the CSV in the multipart field \"file\"",
		Code:    "FILE004",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a CSV file with a header row",
		Code:    "FILE005",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Please try again in a few moments",
		Code:    "DB001",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB002",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB003",
	}},
	{"violates unique", UserMessage{
		Message: "A duplicate value was found",
		Action:  "Please try again",
		Code:    "DB004",
	}},
	{"timeout", UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or try again later",
		Code:    "UPL003",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. Unknown errors map to
// ERR000. A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders MapError as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
