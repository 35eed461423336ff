// Package http provides the HTTP surface: the admission gate, the
// metered completion endpoint, and operational endpoints.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/artpar/tokengate/adapters/metrics"
	"github.com/artpar/tokengate/app"
	_ "github.com/artpar/tokengate/docs/swagger" // swagger docs
	"github.com/artpar/tokengate/domain/identity"
	"github.com/artpar/tokengate/domain/quota"
	"github.com/artpar/tokengate/domain/usage"
	"github.com/artpar/tokengate/ports"
)

// RateLimitResponse is the denial body. Field names and the message
// wording are a wire contract consumed by existing clients; do not
// rename or reorder them.
type RateLimitResponse struct {
	Error             string `json:"error" example:"Rate limit exceeded"`
	Message           string `json:"message" example:"You have used 11000 tokens in the last hour. Limit is 10000 tokens per hour."`
	TokensUsed        int64  `json:"tokens_used" example:"11000"`
	Limit             int64  `json:"limit" example:"10000"`
	ResetTime         string `json:"reset_time" example:"2024-01-15T12:10:00Z"`
	RetryAfterSeconds int    `json:"retry_after_seconds" example:"599"`
}

// ErrorResponse is the generic error body for non-quota failures.
type ErrorResponse struct {
	Error   string `json:"error" example:"storage_unavailable"`
	Message string `json:"message" example:"usage ledger is unavailable"`
}

// CompletionRequestBody is the metered completion request.
type CompletionRequestBody struct {
	Prompt      string  `json:"prompt" example:"Summarize this text"`
	Model       string  `json:"model,omitempty" example:"gpt-4o-mini"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" example:"1024"`
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
}

// CompletionResponseBody is the completion response.
type CompletionResponseBody struct {
	Content    string `json:"content"`
	Model      string `json:"model" example:"gpt-4o-mini"`
	TokensUsed int64  `json:"tokens_used" example:"412"`
	LatencyMs  int64  `json:"latency_ms" example:"840"`
}

// UsageResponse reports current window consumption for an identity.
type UsageResponse struct {
	Identity   string `json:"identity" example:"203.0.113.7"`
	TokensUsed int64  `json:"tokens_used" example:"8000"`
	Limit      int64  `json:"limit" example:"10000"`
	Remaining  int64  `json:"remaining" example:"2000"`
	Allowed    bool   `json:"allowed" example:"true"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Handler wires the admission service and the upstream caller into HTTP.
type Handler struct {
	admission *app.AdmissionService
	caller    ports.ModelCaller
	recorder  ports.UsageRecorder
	ids       ports.IDGenerator
	clock     ports.Clock
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// HandlerDeps contains dependencies for Handler.
type HandlerDeps struct {
	Admission *app.AdmissionService
	Caller    ports.ModelCaller
	Recorder  ports.UsageRecorder
	IDs       ports.IDGenerator
	Clock     ports.Clock
	Metrics   *metrics.Collector // optional
}

// NewHandler creates a new HTTP handler.
func NewHandler(deps HandlerDeps, logger zerolog.Logger) *Handler {
	return &Handler{
		admission: deps.Admission,
		caller:    deps.Caller,
		recorder:  deps.Recorder,
		ids:       deps.IDs,
		clock:     deps.Clock,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// Gate is the admission middleware. It resolves the caller's identity,
// evaluates the quota, and either rejects the request or passes it on
// with the identity stored in the context. Denial writes nothing to the
// ledger: only completed upstream work consumes quota.
func (h *Handler) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := identity.RequestMeta{
			ForwardedFor: r.Header.Get("X-Forwarded-For"),
			RealIP:       r.Header.Get("X-Real-IP"),
			RemoteAddr:   r.RemoteAddr,
		}

		res, err := h.admission.Admit(r.Context(), meta)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Error:   "storage_unavailable",
				Message: "usage ledger is unavailable",
			})
			return
		}
		if !res.Allowed {
			h.writeRateLimited(w, res.Decision)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), res.Identity)))
	})
}

func (h *Handler) writeRateLimited(w http.ResponseWriter, d quota.Decision) {
	phrase := windowPhrase(h.admission.Policy().Window)
	retryAfter := int(d.RetryAfter / time.Second)
	if retryAfter < 0 {
		retryAfter = 0
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, RateLimitResponse{
		Error: "Rate limit exceeded",
		Message: fmt.Sprintf("You have used %d tokens in the last %s. Limit is %d tokens per %s.",
			d.Used, phrase, d.Limit, phrase),
		TokensUsed:        d.Used,
		Limit:             d.Limit,
		ResetTime:         d.ResetAt.UTC().Format(time.RFC3339),
		RetryAfterSeconds: retryAfter,
	})
}

// windowPhrase renders the quota window for the denial message.
func windowPhrase(w time.Duration) string {
	if w == time.Hour {
		return "hour"
	}
	return w.String()
}

// Complete handles a metered completion request.
//
//	@Summary		Run a completion
//	@Description	Checks the caller's token quota, forwards the prompt to the model provider, and records the tokens consumed
//	@Tags			Completions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CompletionRequestBody	true	"Completion request"
//	@Success		200		{object}	CompletionResponseBody
//	@Failure		400		{object}	ErrorResponse		"Malformed request"
//	@Failure		429		{object}	RateLimitResponse	"Token quota exhausted"
//	@Failure		502		{object}	ErrorResponse		"Model provider error"
//	@Failure		503		{object}	ErrorResponse		"Usage ledger unavailable"
//	@Router			/v1/complete [post]
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var body CompletionRequestBody
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "failed to read request body"})
		return
	}
	if err := json.Unmarshal(data, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "prompt is required"})
		return
	}

	id, ok := IdentityFromContext(r.Context())
	if !ok {
		// Complete is only mounted behind Gate; this is a wiring bug.
		h.logger.Error().Msg("completion request reached handler without admission")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "admission not performed"})
		return
	}

	start := time.Now()
	result, err := h.caller.Complete(r.Context(), ports.CompletionRequest{
		Model:       body.Model,
		System:      body.System,
		Prompt:      body.Prompt,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
	})
	if h.metrics != nil {
		h.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// Failed calls consume nothing; no record is written.
		if h.metrics != nil {
			h.metrics.UpstreamErrors.Inc()
		}
		h.logger.Error().Err(err).Str("identity", id).Msg("upstream completion failed")
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: "model provider request failed"})
		return
	}

	rec, err := usage.New(h.ids.New(), id, result.TokensUsed, result.Model, "/v1/complete", h.clock.Now())
	if err != nil {
		// Recording problems never fail the response the caller paid for.
		h.logger.Error().Err(err).Str("identity", id).Msg("dropping invalid usage record")
	} else {
		h.recorder.Record(rec)
	}

	h.logger.Info().
		Str("identity", id).
		Str("model", result.Model).
		Int64("tokens_used", result.TokensUsed).
		Int64("latency_ms", result.LatencyMs).
		Msg("completion served")

	writeJSON(w, http.StatusOK, CompletionResponseBody{
		Content:    result.Content,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		LatencyMs:  result.LatencyMs,
	})
}

// Usage reports an identity's current window consumption.
//
//	@Summary		Get usage for an identity
//	@Description	Returns tokens consumed in the current window, the limit, and whether the next request would be admitted
//	@Tags			Usage
//	@Produce		json
//	@Param			identity	path		string	true	"Quota identity (client IP)"
//	@Success		200			{object}	UsageResponse
//	@Failure		503			{object}	ErrorResponse	"Usage ledger unavailable"
//	@Router			/v1/usage/{identity} [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")

	d, err := h.admission.Evaluate(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "storage_unavailable",
			Message: "usage ledger is unavailable",
		})
		return
	}

	remaining := d.Limit - d.Used
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, UsageResponse{
		Identity:   id,
		TokensUsed: d.Used,
		Limit:      d.Limit,
		Remaining:  remaining,
		Allowed:    d.Allowed,
	})
}

// Health returns a simple liveness check.
//
//	@Summary		Liveness check
//	@Description	Returns OK if the service is running
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/healthz [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics       *metrics.Collector
	MetricsPath   string // default "/metrics"
	EnableOpenAPI bool
}

// NewRouter creates the main HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.Health)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	if cfg.EnableOpenAPI {
		r.Get("/swagger/*", httpSwagger.Handler())
	}

	r.Get("/v1/usage/{identity}", h.Usage)

	r.Group(func(r chi.Router) {
		r.Use(h.Gate)
		r.Post("/v1/complete", h.Complete)
	})

	return r
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/healthz") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
