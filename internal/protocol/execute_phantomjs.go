package protocol

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phantomctl/internal/script"
	"github.com/xkilldash9x/phantomctl/internal/webdriver"
)

const (
	// PhantomExecutePath is the GhostDriver (JSONWire) endpoint.
	PhantomExecutePath = "/session/:sessionId/phantom/execute"
	// PhantomExecuteSyncPath is the W3C style endpoint tried when the
	// server does not know PhantomExecutePath.
	PhantomExecuteSyncPath = "/session/:sessionId/phantom/execute/sync"
)

// ExecutePhantomJS injects a script into the PhantomJS page object of the
// session (not the page's DOM) and returns the remote result unchanged.
//
// scriptOrFunction is either a string holding a function body or a
// script.Function. The body is invoked with args, which the script reads
// through the arguments object in order. Args may be any JSON value; objects
// that are WebElement references are resolved by the remote end.
//
//	res, err := client.ExecutePhantomJS(ctx,
//		script.Function("function (path) { page.render(path); return 'done' }"),
//		"./mydoc.pdf")
//
// Pass a prepared slice with a spread, ExecutePhantomJS(ctx, s, args...).
// Without the spread the slice travels as one argument, so []interface{}{}
// is sent as [[]] rather than [].
//
// A script of any other type fails with script.ErrInvalidArgument and no
// request is sent. If the server reports the legacy endpoint as an unknown
// command, the identical request is sent once to PhantomExecuteSyncPath.
// Every other error, including the retry's, is returned as is.
func (c *Client) ExecutePhantomJS(ctx context.Context, scriptOrFunction interface{}, args ...interface{}) (*webdriver.CommandResult, error) {
	source, err := script.Normalize(scriptOrFunction, c.wrapFunctionStrings)
	if err != nil {
		return nil, err
	}
	req := script.NewRequest(source, args)

	result, err := c.transport.Create(ctx, PhantomExecutePath, req)
	if err == nil {
		return result, nil
	}
	if !IsUnknownCommand(err) {
		return nil, err
	}

	c.logger.Debug("Legacy phantom execute endpoint not supported, retrying W3C endpoint",
		zap.String("path", PhantomExecuteSyncPath), zap.Error(err))
	return c.transport.Create(ctx, PhantomExecuteSyncPath, req)
}

// IsUnknownCommand reports whether err means the remote end does not
// implement the command that was sent.
func IsUnknownCommand(err error) bool {
	if err == nil {
		return false
	}
	var wdErr *webdriver.Error
	if errors.As(err, &wdErr) {
		return wdErr.IsUnknownCommand()
	}
	return webdriver.UnknownCommandPattern.MatchString(err.Error())
}
