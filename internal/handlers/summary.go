package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"reblurb-gateway/internal/cache"
	"reblurb-gateway/internal/llm"
	"reblurb-gateway/internal/summary"
	"reblurb-gateway/pkg/logging/logging"

	"go.uber.org/zap"
)

const missingReviewsMessage = "Missing required data field: reviews"

// Summarizer is what the handler needs from the orchestrator.
type Summarizer interface {
	Summarize(ctx context.Context, req summary.Request) (summary.Result, error)
	Lookup(ctx context.Context, productID, site, promptType string) (cache.Record, bool, error)
}

// SummaryHandler serves POST / and GET /checkDB.
type SummaryHandler struct {
	Summaries Summarizer
}

func NewSummaryHandler(s Summarizer) *SummaryHandler {
	return &SummaryHandler{Summaries: s}
}

type summarizeRequest struct {
	ItemID       string   `json:"itmId"`
	Site         string   `json:"site"`
	PromptType   string   `json:"promptType"`
	ForceRefresh bool     `json:"forceRefresh"`
	Reviews      []string `json:"reviews"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type checkResponse struct {
	InDB    bool   `json:"inDB"`
	Summary string `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Summarize handles POST /.
// An absent or null "reviews" field is only an error when the summary has
// to be generated.
func (h *SummaryHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	res, err := h.Summaries.Summarize(ctx, summary.Request{
		ProductID:    req.ItemID,
		Site:         req.Site,
		PromptType:   req.PromptType,
		Reviews:      req.Reviews,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		h.writeError(w, logger, err)
		return
	}

	logger.Info("summary_decision",
		zap.String("cache_key", res.Key.String()),
		zap.String("source", string(res.Source)),
		zap.Bool("cache_hit", res.Source == summary.SourceCache),
		zap.Bool("force_refresh", req.ForceRefresh),
		zap.Int("reviews", len(req.Reviews)),
		zap.Duration("total_latency", time.Since(start)),
	)

	h.writeJSON(w, http.StatusOK, messageResponse{Message: res.Summary})
}

// CheckDB handles GET /checkDB?site=&itmId=&promptType=.
func (h *SummaryHandler) CheckDB(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	q := r.URL.Query()
	rec, ok, err := h.Summaries.Lookup(ctx, q.Get("itmId"), q.Get("site"), q.Get("promptType"))
	if err != nil {
		h.writeError(w, logger, err)
		return
	}

	if !ok {
		h.writeJSON(w, http.StatusOK, checkResponse{InDB: false, Summary: ""})
		return
	}
	h.writeJSON(w, http.StatusOK, checkResponse{InDB: true, Summary: rec.Summary})
}

// writeError maps the error taxonomy onto status codes.
func (h *SummaryHandler) writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var status int
	var msg string

	switch {
	case errors.Is(err, summary.ErrMissingReviews):
		status, msg = http.StatusBadRequest, missingReviewsMessage
	case errors.Is(err, cache.ErrInvalidKeyInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, cache.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "summary store unavailable"
	case errors.Is(err, llm.ErrGenerationEmpty):
		status, msg = http.StatusBadGateway, "summary generation returned no content"
	case errors.Is(err, llm.ErrGenerationUnavailable):
		status, msg = http.StatusBadGateway, "summary generation unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "gateway_timeout"
	default:
		status, msg = http.StatusInternalServerError, "internal_server_error"
	}

	fields := []zap.Field{zap.Int("status", status), zap.Error(err)}
	var serr *summary.Error
	if errors.As(err, &serr) {
		fields = append(fields, zap.String("phase", string(serr.Phase)), zap.String("cache_key", serr.Key))
	}
	if status >= http.StatusInternalServerError {
		logger.Error("summary_request_failed", fields...)
	} else {
		logger.Warn("summary_request_rejected", fields...)
	}

	h.writeJSON(w, status, errorResponse{Error: msg})
}

// writeJSON is a small helper to send JSON responses consistently.
func (h *SummaryHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
