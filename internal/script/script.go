// Package script models the scripts sent to a WebDriver session for execution
// and normalizes them into the string form the wire protocol expects.
package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
)

// ErrInvalidArgument reports a script of the wrong shape. It is returned
// before any request is sent.
var ErrInvalidArgument = errors.New("number or type of arguments don't agree with executePhantomJS protocol command")

// FunctionPrefix marks string scripts that are function declarations rather
// than function bodies.
const FunctionPrefix = "function ("

// Function is the source text of a JavaScript function, e.g.
// Function("(path) => { page.render(path); return 'done' }").
//
// Passing a Function instead of a plain string tells the executor to invoke
// it with the request arguments instead of treating the text as a body.
type Function string

// Request is the body of an execute command.
type Request struct {
	Script string        `json:"script"`
	Args   []interface{} `json:"args"`
}

// NewRequest builds a Request. A nil args slice is sent as an empty array.
func NewRequest(source string, args []interface{}) Request {
	if args == nil {
		args = []interface{}{}
	}
	return Request{Script: source, Args: args}
}

// Serialize returns the textual form of f, checked to be a single JavaScript
// expression so that it can be embedded in Wrap's call expression.
func Serialize(f Function) (string, error) {
	source := strings.TrimSpace(string(f))
	if source == "" {
		return "", fmt.Errorf("%w: empty function source", ErrInvalidArgument)
	}

	program, err := goja.Parse("function", "("+source+")")
	if err != nil {
		return "", fmt.Errorf("%w: function source does not parse: %v", ErrInvalidArgument, err)
	}
	if len(program.Body) != 1 {
		return "", fmt.Errorf("%w: function source must be a single expression", ErrInvalidArgument)
	}
	if _, ok := program.Body[0].(*ast.ExpressionStatement); !ok {
		return "", fmt.Errorf("%w: function source must be an expression", ErrInvalidArgument)
	}
	return source, nil
}

// Wrap turns function source into a function body that applies it to the
// caller's this and arguments.
func Wrap(source string) string {
	return "return (" + source + ").apply(this, arguments)"
}

// IsFunctionString reports whether s looks like a function declaration.
// The check is textual and anchored at the first byte.
func IsFunctionString(s string) bool {
	return strings.HasPrefix(s, FunctionPrefix)
}

// Normalize converts a string or Function into the script string that goes
// on the wire. Functions are always wrapped. Strings are sent as given,
// unless wrapFunctionStrings is set and the string starts with FunctionPrefix.
// Any other type yields ErrInvalidArgument.
func Normalize(scriptOrFunction interface{}, wrapFunctionStrings bool) (string, error) {
	switch s := scriptOrFunction.(type) {
	case Function:
		source, err := Serialize(s)
		if err != nil {
			return "", err
		}
		return Wrap(source), nil
	case string:
		if wrapFunctionStrings && IsFunctionString(s) {
			return Wrap(s), nil
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: got %T", ErrInvalidArgument, scriptOrFunction)
	}
}
