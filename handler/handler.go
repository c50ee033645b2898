package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chat-relay/internal/domain"
	"chat-relay/internal/observability"
	"chat-relay/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 4 << 20

	codeInvalidBody = "INVALID_BODY"
	codeInternal    = "INTERNAL_ERROR"
)

// ChatUseCase validates a chat payload and relays the upstream stream.
type ChatUseCase interface {
	Validate(in usecase.ChatInput) (domain.ChatRequest, error)
	Relay(ctx context.Context, req domain.ChatRequest, w usecase.FragmentWriter) (int, error)
}

type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type Handler struct {
	chat   ChatUseCase
	logger *slog.Logger
}

func NewHandler(chat ChatUseCase, logger *slog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chat: chat, logger: logger}, nil
}

// Routes returns the HTTP surface. metrics is mounted at metricsPath when
// both are set.
func (h *Handler) Routes(metricsPath string, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", observability.Instrument("chat", http.HandlerFunc(h.serveChat)))
	mux.Handle("GET /api/health", observability.Instrument("health", http.HandlerFunc(h.serveHealth)))
	if metricsPath != "" && metrics != nil {
		mux.Handle("GET "+metricsPath, metrics)
	}
	return withCorrelationID(withCORS(mux))
}

func (h *Handler) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// serveChat streams the completion as plain text. The status line is only
// committed with the first fragment, so failures before that get a JSON
// error. A failure after it aborts the connection: bytes already sent stay
// delivered and the client observes a truncated body.
func (h *Handler) serveChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.logger.With("correlation_id", w.Header().Get(correlationHeader))

	var in usecase.ChatInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		log.Info("chat request rejected", "reason", "invalid_body", "err", err)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Detail: "request body must be a JSON object: " + err.Error(),
			Code:   codeInvalidBody,
		})
		return
	}

	req, err := h.chat.Validate(in)
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	log = log.With("model", req.ModelID)

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	sw := newStreamWriter(w)
	n, err := h.chat.Relay(r.Context(), req, sw)
	if err != nil {
		if sw.started {
			log.Warn("chat stream aborted after partial output",
				"fragments", n, "duration_ms", time.Since(start).Milliseconds(), "err", err)
			panic(http.ErrAbortHandler)
		}
		h.writeError(w, log, err)
		return
	}
	sw.begin()
	log.Info("chat stream completed", "fragments", n, "duration_ms", time.Since(start).Milliseconds())
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, code, detail := describeError(err)
	switch {
	case status >= 500:
		log.Error("chat request failed", "status", status, "code", code, "err", err)
	default:
		log.Info("chat request rejected", "status", status, "code", code, "err", err)
	}
	writeJSON(w, status, errorResponse{Detail: detail, Code: code})
}

// describeError maps use case errors to an HTTP status. Caller mistakes are
// 422, provider failures are 401/429/502 and anything else is 500.
func describeError(err error) (int, string, string) {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
	status := http.StatusBadGateway
	switch {
	case uerr.Class == usecase.ClassValidation:
		status = http.StatusUnprocessableEntity
	case uerr.Code == usecase.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case uerr.Code == usecase.ErrorAuthenticationRejected:
		status = http.StatusUnauthorized
	}
	return status, string(uerr.Code), uerr.Detail()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// streamWriter writes fragments straight to the response and flushes each
// one. Empty fragments are dropped.
type streamWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	return &streamWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *streamWriter) begin() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *streamWriter) WriteFragment(text string) error {
	if text == "" {
		return nil
	}
	s.begin()
	if _, err := io.WriteString(s.w, text); err != nil {
		return fmt.Errorf("handler: write fragment: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("handler: flush fragment: %w", err)
	}
	return nil
}

var newUUID = func() string {
	return uuid.NewString()
}
