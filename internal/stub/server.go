// Package stub serves a minimal PhantomJS WebDriver session backed by an
// embedded JavaScript runtime. It answers the phantom execute commands and
// nothing else, which is enough to drive the client end to end without a
// browser.
package stub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phantomctl/internal/jsexec"
	"github.com/xkilldash9x/phantomctl/internal/webdriver"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

const maxRequestBytes = 8 << 20

// Config configures a Server.
type Config struct {
	// SessionID of the single session served. Generated when empty.
	SessionID string
	Title     string
	// W3COnly rejects the legacy execute endpoint the way GhostDriver
	// rejects routes it does not know.
	W3COnly bool
	// ScriptTimeout bounds a single script. Zero uses jsexec.DefaultTimeout.
	ScriptTimeout time.Duration
}

// Server is an http.Handler emulating one PhantomJS session.
type Server struct {
	cfg     Config
	runtime *jsexec.Runtime
	mux     *http.ServeMux
	logger  *zap.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	s := &Server{
		cfg:     cfg,
		runtime: jsexec.NewRuntime(logger, cfg.Title),
		mux:     http.NewServeMux(),
		logger:  logger.Named("stub"),
	}
	s.mux.HandleFunc("POST /session/{sessionId}/phantom/execute", s.handleExecute(true))
	s.mux.HandleFunc("POST /session/{sessionId}/phantom/execute/sync", s.handleExecute(false))
	s.mux.HandleFunc("/", s.handleUnknown)
	return s
}

// SessionID returns the id of the served session.
func (s *Server) SessionID() string {
	return s.cfg.SessionID
}

// SetTitle changes the page title seen by scripts.
func (s *Server) SetTitle(title string) {
	s.runtime.SetTitle(title)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type executeRequest struct {
	Script *string       `json:"script"`
	Args   []interface{} `json:"args"`
}

type response struct {
	SessionID string      `json:"sessionId"`
	Status    int         `json:"status"`
	Value     interface{} `json:"value"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleExecute(legacy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if legacy && s.cfg.W3COnly {
			s.handleUnknown(w, r)
			return
		}
		if r.PathValue("sessionId") != s.cfg.SessionID {
			s.writeError(w, http.StatusNotFound, webdriver.CodeInvalidSessionID,
				fmt.Sprintf("session %s not found", r.PathValue("sessionId")))
			return
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid argument", err.Error())
			return
		}
		var req executeRequest
		if err := wire.Unmarshal(raw, &req); err != nil || req.Script == nil {
			s.writeError(w, http.StatusBadRequest, "invalid argument", "body must be {\"script\": string, \"args\": array}")
			return
		}

		ctx := r.Context()
		if s.cfg.ScriptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.ScriptTimeout)
			defer cancel()
		}

		value, err := s.runtime.ExecuteScript(ctx, *req.Script, req.Args)
		if err != nil {
			s.writeScriptError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, response{SessionID: s.cfg.SessionID, Value: value})
	}
}

// handleUnknown mimics GhostDriver's reply for routes it does not serve.
func (s *Server) handleUnknown(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Unknown command", zap.String("method", r.Method), zap.String("path", r.URL.Path))
	w.Header().Set("Content-Type", "text/plain;charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = fmt.Fprintf(w, "Invalid Command Method - Request => %s %s did not match a known command", r.Method, r.URL.Path)
}

func (s *Server) writeScriptError(w http.ResponseWriter, err error) {
	var exc *jsexec.ExceptionError
	switch {
	case errors.As(err, &exc):
		s.writeError(w, http.StatusInternalServerError, webdriver.CodeJavaScriptError, exc.Message)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusInternalServerError, webdriver.CodeScriptTimeout, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, webdriver.CodeUnknownError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, response{
		SessionID: s.cfg.SessionID,
		Value:     errorBody{Error: code, Message: message},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	payload, err := wire.Marshal(body)
	if err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
		status = http.StatusInternalServerError
		payload, _ = wire.Marshal(response{
			SessionID: s.cfg.SessionID,
			Value:     errorBody{Error: webdriver.CodeJavaScriptError, Message: "result is not JSON serializable"},
		})
	}
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
