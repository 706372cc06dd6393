package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lotwise/api/internal/domain"
	"github.com/lotwise/api/internal/platform/httpx"
	"github.com/lotwise/api/internal/services"
)

const maxQuoteRequestBody = 64 * 1024

// QuoteCalculator creates and retrieves deal quotes.
type QuoteCalculator interface {
	CreateQuote(ctx context.Context, input domain.ScenarioInput) (domain.ScenarioResult, error)
	GetQuote(ctx context.Context, quoteID string) (domain.ScenarioResult, error)
}

// QuoteHandlers exposes the quoting endpoints.
type QuoteHandlers struct {
	quotes  QuoteCalculator
	limiter RateLimiter
}

// NewQuoteHandlers constructs the quote handler set. The limiter may be nil
// to disable request throttling.
func NewQuoteHandlers(quotes QuoteCalculator, limiter RateLimiter) *QuoteHandlers {
	return &QuoteHandlers{
		quotes:  quotes,
		limiter: limiter,
	}
}

// Routes registers the quote endpoints beneath /quotes.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.create)
	r.Get("/{quoteId}", h.get)
}

func (h *QuoteHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "quote service not available", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(rateLimitKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxQuoteRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var input domain.ScenarioInput
	if err := json.Unmarshal(body, &input); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.quotes.CreateQuote(ctx, input)
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, quoteResponse{Quote: result})
}

func (h *QuoteHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "quote service not available", http.StatusServiceUnavailable))
		return
	}

	quoteID := strings.TrimSpace(chi.URLParam(r, "quoteId"))
	if quoteID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quote id is required", http.StatusBadRequest))
		return
	}

	result, err := h.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, quoteResponse{Quote: result})
}

type quoteResponse struct {
	Quote domain.ScenarioResult `json:"quote"`
}

func rateLimitKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrQuoteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrQuoteNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "quote not found", http.StatusNotFound))
	case errors.Is(err, services.ErrQuoteCalculation):
		httpx.WriteError(ctx, w, httpx.NewError("quote_error", "failed to calculate quote", http.StatusInternalServerError))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("quote_error", "failed to process quote request", http.StatusInternalServerError))
	}
}
