// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/phantomctl/internal/observability"
	"github.com/xkilldash9x/phantomctl/internal/stub"
	"github.com/xkilldash9x/phantomctl/internal/webdriver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// resetForTest isolates a test from the global logger, the user's home
// config and PHANTOMCTL_ variables set in the environment.
func resetForTest(t *testing.T) string {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "PHANTOMCTL_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	t.Setenv("WEBDRIVER_SESSION_ID", "")
	os.Unsetenv("WEBDRIVER_SESSION_ID")
	return dir
}

type result struct {
	stdout string
	stderr string
	err    error
}

func run(t *testing.T, ctx context.Context, stdin string, args ...string) result {
	t.Helper()
	rootCmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func newStub(t *testing.T, cfg stub.Config) (*stub.Server, *httptest.Server) {
	t.Helper()
	if cfg.Title == "" {
		cfg.Title = "Example"
	}
	srv := stub.NewServer(cfg, zaptest.NewLogger(t))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestVersion(t *testing.T) {
	resetForTest(t)

	res := run(t, context.Background(), "", "version")
	require.NoError(t, res.err)
	assert.Equal(t, "phantomctl "+Version+"\n", res.stdout)

	res = run(t, context.Background(), "", "--version")
	require.NoError(t, res.err)
	assert.Equal(t, Version+"\n", res.stdout)
}

func TestExec_DocumentTitle(t *testing.T) {
	resetForTest(t)
	srv, ts := newStub(t, stub.Config{})

	res := run(t, context.Background(), "", "exec", "--url", ts.URL, "--session", srv.SessionID(), "return document.title")
	require.NoError(t, res.err)
	assert.Equal(t, "\"Example\"\n", res.stdout)
}

func TestExec_FunctionWithArgs(t *testing.T) {
	resetForTest(t)
	srv, ts := newStub(t, stub.Config{W3COnly: true})

	res := run(t, context.Background(), "",
		"exec", "--url", ts.URL, "--session", srv.SessionID(),
		"--function",
		"--arg", `"./mydoc.pdf"`,
		"--arg", `{"pages": 2}`,
		"function (path, opts) { return {path: path, pages: opts.pages, done: true} }")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"path":"./mydoc.pdf","pages":2,"done":true}`, res.stdout)
	assert.True(t, strings.HasPrefix(res.stdout, "{\n  "), "output is indented")
}

func TestExec_MultiSessionWrapsFunctionStrings(t *testing.T) {
	resetForTest(t)
	srv, ts := newStub(t, stub.Config{})

	res := run(t, context.Background(), "",
		"exec", "--url", ts.URL, "--session", srv.SessionID(), "--multi-session",
		"--arg", "6", "--arg", "7",
		"function (a, b) { return a * b }")
	require.NoError(t, res.err)
	assert.Equal(t, "42\n", res.stdout)
}

func TestExec_ScriptFromStdin(t *testing.T) {
	resetForTest(t)
	srv, ts := newStub(t, stub.Config{})

	res := run(t, context.Background(), "window.seen = true;\nreturn window.seen\n",
		"exec", "--url", ts.URL, "--session", srv.SessionID())
	require.NoError(t, res.err)
	assert.Equal(t, "true\n", res.stdout)

	res = run(t, context.Background(), "  ", "exec", "--url", ts.URL, "--session", srv.SessionID(), "-")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "no script given")
}

func TestExec_Errors(t *testing.T) {
	resetForTest(t)
	srv, ts := newStub(t, stub.Config{})

	t.Run("argument is not JSON", func(t *testing.T) {
		res := run(t, context.Background(), "", "exec", "--url", ts.URL, "--session", srv.SessionID(),
			"--arg", "not json", "return 1")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "--arg #1")
	})

	t.Run("script throws", func(t *testing.T) {
		observability.ResetForTest()
		res := run(t, context.Background(), "", "exec", "--url", ts.URL, "--session", srv.SessionID(),
			"throw new Error('boom')")
		require.Error(t, res.err)
		var wdErr *webdriver.Error
		require.ErrorAs(t, res.err, &wdErr)
		assert.Equal(t, webdriver.CodeJavaScriptError, wdErr.Code)
	})

	t.Run("no session", func(t *testing.T) {
		observability.ResetForTest()
		res := run(t, context.Background(), "", "exec", "--url", ts.URL, "return 1")
		assert.ErrorIs(t, res.err, webdriver.ErrNoSessionID)
	})

	t.Run("function source does not parse", func(t *testing.T) {
		observability.ResetForTest()
		res := run(t, context.Background(), "", "exec", "--url", ts.URL, "--session", srv.SessionID(),
			"-f", "function ( {")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "executePhantomJS")
	})

	t.Run("invalid url", func(t *testing.T) {
		observability.ResetForTest()
		res := run(t, context.Background(), "", "exec", "--url", "ftp://localhost", "return 1")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "failed to load or validate config")
	})
}

func TestExec_ConfigSources(t *testing.T) {
	t.Run("working directory file", func(t *testing.T) {
		dir := resetForTest(t)
		srv, ts := newStub(t, stub.Config{})
		writeConfig(t, filepath.Join(dir, "phantomctl.yaml"), ts.URL, srv.SessionID())

		res := run(t, context.Background(), "", "exec", "return document.title")
		require.NoError(t, res.err)
		assert.Equal(t, "\"Example\"\n", res.stdout)
	})

	t.Run("home directory file", func(t *testing.T) {
		dir := resetForTest(t)
		srv, ts := newStub(t, stub.Config{})
		writeConfig(t, filepath.Join(dir, ".phantomctl.yaml"), ts.URL, srv.SessionID())

		res := run(t, context.Background(), "", "exec", "return document.title")
		require.NoError(t, res.err)
		assert.Equal(t, "\"Example\"\n", res.stdout)
	})

	t.Run("explicit file with tilde", func(t *testing.T) {
		dir := resetForTest(t)
		srv, ts := newStub(t, stub.Config{})
		writeConfig(t, filepath.Join(dir, "custom.yaml"), ts.URL, srv.SessionID())

		res := run(t, context.Background(), "", "--config", "~/custom.yaml", "exec", "return document.title")
		require.NoError(t, res.err)
		assert.Equal(t, "\"Example\"\n", res.stdout)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		resetForTest(t)
		res := run(t, context.Background(), "", "-c", "nope.yaml", "exec", "return 1")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "error reading config file")
	})

	t.Run("environment", func(t *testing.T) {
		resetForTest(t)
		srv, ts := newStub(t, stub.Config{})
		t.Setenv("PHANTOMCTL_WEBDRIVER_URL", ts.URL)
		t.Setenv("WEBDRIVER_SESSION_ID", srv.SessionID())

		res := run(t, context.Background(), "", "exec", "return document.title")
		require.NoError(t, res.err)
		assert.Equal(t, "\"Example\"\n", res.stdout)
	})

	t.Run("flags override file", func(t *testing.T) {
		dir := resetForTest(t)
		srv, ts := newStub(t, stub.Config{})
		writeConfig(t, filepath.Join(dir, "phantomctl.yaml"), "http://127.0.0.1:1", "wrong")

		res := run(t, context.Background(), "", "exec", "--url", ts.URL, "--session", srv.SessionID(), "return 1")
		require.NoError(t, res.err)
		assert.Equal(t, "1\n", res.stdout)
	})
}

func writeConfig(t *testing.T, path, url, session string) {
	t.Helper()
	content := "webdriver:\n  url: " + url + "\n  session_id: " + session + "\nlogger:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestStub_StopsOnCancel(t *testing.T) {
	resetForTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan result, 1)
	go func() {
		done <- run(t, ctx, "", "stub", "--addr", "127.0.0.1:0", "--title", "Example")
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.NoError(t, res.err)
	case <-time.After(10 * time.Second):
		t.Fatal("stub command did not stop after cancellation")
	}
}

func TestStub_BadAddress(t *testing.T) {
	resetForTest(t)

	res := run(t, context.Background(), "", "stub", "--addr", "not-an-address")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "listen")
}

func TestConfigFromContext_Missing(t *testing.T) {
	_, err := configFromContext(context.Background())
	assert.Error(t, err)
}
