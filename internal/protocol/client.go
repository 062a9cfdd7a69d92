// Package protocol implements WebDriver protocol commands on top of a
// webdriver.Transport.
package protocol

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/phantomctl/internal/webdriver"
)

// Client issues protocol commands against the session its transport is bound to.
// It holds no mutable state and is safe for concurrent use when the transport is.
type Client struct {
	transport webdriver.Transport
	// wrapFunctionStrings rewrites string scripts that start with
	// script.FunctionPrefix into call expressions.
	wrapFunctionStrings bool
	logger              *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithFunctionStrings enables rewriting of "function (" string scripts.
// Runners that cannot ship function values across sessions send their
// functions as strings and need this on.
func WithFunctionStrings(enabled bool) Option {
	return func(c *Client) { c.wrapFunctionStrings = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client on top of transport.
func NewClient(transport webdriver.Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("protocol")
	return c
}
