package subscription

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

const defaultMaxWebhookBody int64 = 64 << 10

// SignatureVerifier checks a delivery's signature before it is reconciled.
type SignatureVerifier func(payload []byte, header http.Header) error

type webhookHandler struct {
	rec     *Reconciler
	verify  SignatureVerifier
	maxBody int64
	logger  *slog.Logger
}

// WebhookHandlerOption configures the webhook HTTP handler.
type WebhookHandlerOption func(*webhookHandler)

// WithSignatureVerifier rejects deliveries whose signature does not verify.
// Rejected deliveries still get 200 so the sender does not retry them.
func WithSignatureVerifier(v SignatureVerifier) WebhookHandlerOption {
	return func(h *webhookHandler) {
		h.verify = v
	}
}

// WithMaxBodySize caps the request body. Non-positive values keep the default of 64 KiB.
func WithMaxBodySize(n int64) WebhookHandlerOption {
	return func(h *webhookHandler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithWebhookLogger sets the logger for request read failures.
func WithWebhookLogger(l *slog.Logger) WebhookHandlerOption {
	return func(h *webhookHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewWebhookHandler returns an http.Handler that feeds deliveries to rec.
// It answers 400 only when the body cannot be read or decoded; every other
// outcome, including failures, is 200 with a short description.
func NewWebhookHandler(rec *Reconciler, opts ...WebhookHandlerOption) http.Handler {
	if rec == nil {
		panic("subscription: Reconciler is required")
	}
	h := &webhookHandler{
		rec:     rec,
		maxBody: defaultMaxWebhookBody,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WebhookRoutes mounts the handler at POST /. Other methods get 405.
func WebhookRoutes(rec *Reconciler, opts ...WebhookHandlerOption) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/", NewWebhookHandler(rec, opts...))
	return r
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.logger.WarnContext(r.Context(), "unreadable webhook body", logger.Error(err))
		writeOutcome(w, http.StatusBadRequest, OutcomeInvalid)
		return
	}

	if h.verify != nil {
		if err := h.verify(payload, r.Header); err != nil {
			h.logger.WarnContext(r.Context(), "webhook signature rejected", logger.Error(err))
			writeOutcome(w, http.StatusOK, OutcomeUnverified)
			return
		}
	}

	outcome, _ := h.rec.Reconcile(r.Context(), payload)
	if outcome == OutcomeInvalid {
		writeOutcome(w, http.StatusBadRequest, outcome)
		return
	}
	writeOutcome(w, http.StatusOK, outcome)
}

func writeOutcome(w http.ResponseWriter, status int, o Outcome) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, o.Message())
}
