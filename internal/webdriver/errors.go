package webdriver

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// W3C WebDriver error codes used by this package.
const (
	CodeInvalidSessionID = "invalid session id"
	CodeJavaScriptError  = "javascript error"
	CodeScriptTimeout    = "script timeout"
	CodeUnknownCommand   = "unknown command"
	CodeUnknownMethod    = "unknown method"
	CodeUnknownError     = "unknown error"
)

// ErrNoSessionID is returned when a session scoped path is requested but
// no session id has been configured.
var ErrNoSessionID = errors.New("webdriver: no session id configured")

// UnknownCommandPattern matches the message GhostDriver and JSONWire
// servers send for endpoints they do not implement.
var UnknownCommandPattern = regexp.MustCompile(`did not match a known command`)

// legacyStatusCodes maps JSONWire numeric statuses onto W3C error codes.
var legacyStatusCodes = map[int]string{
	6:  CodeInvalidSessionID,
	7:  "no such element",
	8:  "no such frame",
	9:  CodeUnknownCommand,
	10: "stale element reference",
	11: "element not interactable",
	12: "invalid element state",
	13: CodeUnknownError,
	15: "element not selectable",
	17: CodeJavaScriptError,
	19: "invalid selector",
	21: "timeout",
	23: "no such window",
	24: "invalid cookie domain",
	25: "unable to set cookie",
	26: "unexpected alert open",
	27: "no such alert",
	28: CodeScriptTimeout,
	29: "invalid element coordinates",
	32: "invalid selector",
	33: "session not created",
	34: "move target out of bounds",
}

// Error is a failure reported by the remote end.
type Error struct {
	// Path is the command path template that failed.
	Path       string
	HTTPStatus int
	// Code is the W3C error code, or the closest match for legacy servers.
	Code       string
	Message    string
	Stacktrace string
	// LegacyStatus is the JSONWire numeric status, zero when absent.
	LegacyStatus int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webdriver: %s on %s (HTTP %d)", e.Code, e.Path, e.HTTPStatus)
	}
	return fmt.Sprintf("webdriver: %s on %s (HTTP %d): %s", e.Code, e.Path, e.HTTPStatus, e.Message)
}

// IsUnknownCommand reports whether the remote end did not recognize the command.
func (e *Error) IsUnknownCommand() bool {
	return e.Code == CodeUnknownCommand || UnknownCommandPattern.MatchString(e.Message)
}

func legacyCode(status int) string {
	if code, ok := legacyStatusCodes[status]; ok {
		return code
	}
	return CodeUnknownError
}

// inferCode picks an error code for responses that carry none. Only the
// GhostDriver text marks a command as unknown; a bare 404 may come from a
// wrong base URL or a proxy and stays an unknown error.
func inferCode(httpStatus int, message string) string {
	if UnknownCommandPattern.MatchString(message) {
		return CodeUnknownCommand
	}
	if httpStatus == http.StatusMethodNotAllowed {
		return CodeUnknownMethod
	}
	return CodeUnknownError
}
