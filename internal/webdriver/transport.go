// Package webdriver sends WebDriver commands to a remote automation session
// over HTTP and decodes the replies.
package webdriver

import (
	"context"
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionPlaceholder is replaced with the configured session id in command paths.
const SessionPlaceholder = ":sessionId"

// Transport issues WebDriver commands.
type Transport interface {
	// Create POSTs body to the command path. Path may contain SessionPlaceholder.
	Create(ctx context.Context, path string, body interface{}) (*CommandResult, error)
}

// CommandResult is a successful reply from the remote end.
type CommandResult struct {
	SessionID string `json:"sessionId,omitempty"`
	// Status is only sent by JSONWire servers.
	Status *int            `json:"status,omitempty"`
	Value  json.RawMessage `json:"value"`
}

// DecodeValue unmarshals the result value into v.
func (r *CommandResult) DecodeValue(v interface{}) error {
	if len(r.Value) == 0 {
		return fmt.Errorf("webdriver: result has no value")
	}
	if err := wire.Unmarshal(r.Value, v); err != nil {
		return fmt.Errorf("webdriver: decoding result value: %w", err)
	}
	return nil
}
