package jsexec_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/phantomctl/internal/jsexec"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRuntime(t *testing.T) *jsexec.Runtime {
	t.Helper()
	return jsexec.NewRuntime(zaptest.NewLogger(t), "Example")
}

func TestExecuteScript_Basic(t *testing.T) {
	runtime := newTestRuntime(t)

	result, err := runtime.ExecuteScript(context.Background(), "return (5 + 5) * 2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20), result)
}

func TestExecuteScript_DocumentTitle(t *testing.T) {
	runtime := newTestRuntime(t)

	result, err := runtime.ExecuteScript(context.Background(), "return document.title", nil)
	require.NoError(t, err)
	assert.Equal(t, "Example", result)

	runtime.SetTitle("two")
	result, err = runtime.ExecuteScript(context.Background(), "return document.title", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", result)
}

func TestExecuteScript_WithArgs(t *testing.T) {
	runtime := newTestRuntime(t)

	body := "return arguments[0] + arguments[1]"
	result, err := runtime.ExecuteScript(context.Background(), body, []interface{}{"Log: ", "Hello World"})
	require.NoError(t, err)
	assert.Equal(t, "Log: Hello World", result)
}

func TestExecuteScript_WrappedFunction(t *testing.T) {
	runtime := newTestRuntime(t)

	body := "return (function (a, b) { return this === window && a * b }).apply(this, arguments)"
	result, err := runtime.ExecuteScript(context.Background(), body, []interface{}{6, 7})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result)
}

func TestExecuteScript_GlobalsPersist(t *testing.T) {
	runtime := newTestRuntime(t)
	ctx := context.Background()

	result, err := runtime.ExecuteScript(ctx, "return (() => { window.testThatStuff = true }).apply(this, arguments)", nil)
	require.NoError(t, err)
	assert.Nil(t, result, "undefined is exported as nil")

	result, err = runtime.ExecuteScript(ctx, "return (() => window.testThatStuff).apply(this, arguments)", nil)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestExecuteScript_ReturnObject(t *testing.T) {
	runtime := newTestRuntime(t)

	result, err := runtime.ExecuteScript(context.Background(), `return {status: "success", code: 200, tags: ["a"]}`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"status": "success",
		"code":   int64(200),
		"tags":   []interface{}{"a"},
	}, result)
}

func TestExecuteScript_Exception(t *testing.T) {
	runtime := newTestRuntime(t)

	_, err := runtime.ExecuteScript(context.Background(), `throw new Error("boom")`, nil)
	require.Error(t, err)

	var exc *jsexec.ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Contains(t, exc.Message, "boom")
}

func TestExecuteScript_SyntaxError(t *testing.T) {
	runtime := newTestRuntime(t)

	_, err := runtime.ExecuteScript(context.Background(), `return (`, nil)
	var exc *jsexec.ExceptionError
	require.ErrorAs(t, err, &exc)
}

func TestExecuteScript_SettledPromises(t *testing.T) {
	runtime := newTestRuntime(t)
	ctx := context.Background()

	result, err := runtime.ExecuteScript(ctx, `return Promise.resolve("done")`, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result)

	_, err = runtime.ExecuteScript(ctx, `return Promise.reject("nope")`, nil)
	var exc *jsexec.ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Contains(t, exc.Message, "nope")

	_, err = runtime.ExecuteScript(ctx, `return new Promise(function () {})`, nil)
	assert.ErrorIs(t, err, jsexec.ErrPendingPromise)
}

func TestExecuteScript_Timeout(t *testing.T) {
	runtime := newTestRuntime(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runtime.ExecuteScript(ctx, `while (true) {}`, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The interrupt must not leak into the next run.
	result, err := runtime.ExecuteScript(context.Background(), `return 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result)
}
