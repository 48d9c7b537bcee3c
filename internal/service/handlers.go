package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wp-filler/internal/payload"
	"github.com/xkilldash9x/wp-filler/internal/runner"
)

// maxBodyBytes caps webhook payloads.
const maxBodyBytes = 1 << 20

// runWriteSlack is added to the run timeout when a run's write deadline is
// set. It covers state persistence and history recording after the run.
const runWriteSlack = 30 * time.Second

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorBody struct {
	Error   string               `json:"error"`
	Details []payload.FieldError `json:"details,omitempty"`
}

type runBody struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	URL       *string           `json:"url"`
	Timestamp string            `json:"timestamp"`
	RunID     string            `json:"run_id"`
	TestData  map[string]string `json:"testData,omitempty"`
}

type failureBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
}

type healthBody struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{Status: "healthy", Version: s.version, Timestamp: s.timestamp()})
}

func (s *Server) handleCreateLanding(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid payload", Details: []payload.FieldError{{Field: "body", Message: "could not be read"}}})
		return
	}

	req, err := payload.Decode(body)
	if err == nil {
		err = payload.Validate(req)
	}
	if err != nil {
		var verr *payload.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid payload", Details: verr.Details})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid payload"})
		return
	}

	s.logger.Info("Received landing page request",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("headline", req.Headline()),
		zap.Int("fields", len(req.Keys())),
	)
	res, ok := s.execute(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.successBody(res, res.Message))
}

// handleTest runs a fill with the built-in sample payload. It only exists
// when the test endpoint is enabled.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.EnableTestEndpoint {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	req := payload.Sample(s.now())
	s.logger.Info("Running test fill", zap.String("headline", req.Headline()))

	res, ok := s.execute(w, r, req)
	if !ok {
		return
	}
	body := s.successBody(res, runner.Message("Test page", s.mode))
	body.TestData = req.Map()
	writeJSON(w, http.StatusOK, body)
}

// execute waits for a run slot and performs the run. It writes the error
// response itself and reports false when the run did not succeed.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, req payload.Request) (*runner.Result, bool) {
	if err := s.runs.Acquire(r.Context(), 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, failureBody{Error: "request cancelled while waiting for a run slot", Timestamp: s.timestamp()})
		return nil, false
	}
	defer s.runs.Release(1)
	s.extendWriteDeadline(w)

	// A run is not abandoned when the caller hangs up; it is bounded by its
	// own timeout.
	res, err := s.runner.Run(context.WithoutCancel(r.Context()), req)
	if err != nil || res == nil || !res.Success {
		body := failureBody{Timestamp: s.timestamp()}
		switch {
		case err != nil:
			body.Error = err.Error()
		case res != nil:
			body.Error = res.Message
		default:
			body.Error = "run produced no result"
		}
		if res != nil {
			body.RunID = res.RunID
		}
		writeJSON(w, http.StatusInternalServerError, body)
		return nil, false
	}
	return res, true
}

// extendWriteDeadline restarts the connection's write deadline once a run
// slot is held. server.write_timeout starts counting when the request is
// read, so time spent queued would otherwise eat into the run.
func (s *Server) extendWriteDeadline(w http.ResponseWriter) {
	if s.runTimeout <= 0 {
		return
	}
	err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(s.runTimeout + runWriteSlack))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("Could not extend write deadline", zap.Error(err))
	}
}

func (s *Server) successBody(res *runner.Result, message string) runBody {
	return runBody{
		Success:   true,
		Message:   message,
		URL:       res.URL,
		Timestamp: s.timestamp(),
		RunID:     res.RunID,
	}
}
