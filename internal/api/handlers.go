package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sceneforge/sceneledger/internal/credits"
	"github.com/sceneforge/sceneledger/internal/logging"
	"github.com/sceneforge/sceneledger/internal/models"
	"github.com/sceneforge/sceneledger/internal/service"
	"github.com/sceneforge/sceneledger/internal/store"
	"github.com/sceneforge/sceneledger/internal/timeline"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sceneledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	deductionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneledger_deductions_total",
		Help: "Credit deductions by operation and outcome",
	}, []string{"operation", "outcome"})
)

type Handler struct {
	store      *store.Store
	ledger     *service.LedgerService
	meter      *credits.Meter
	classifier timeline.SceneClassifier
	logger     *slog.Logger
}

func NewHandler(s *store.Store, ledger *service.LedgerService, meter *credits.Meter, classifier timeline.SceneClassifier, logger *slog.Logger) *Handler {
	if classifier == nil {
		classifier = timeline.NewKeywordClassifier()
	}
	return &Handler{store: s, ledger: ledger, meter: meter, classifier: classifier, logger: logger}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName    string `json:"display_name"`
		Metered        *bool  `json:"metered,omitempty"`
		InitialBalance *int64 `json:"initial_balance,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/accounts", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	metered := true
	if req.Metered != nil {
		metered = *req.Metered
	}
	balance := service.DefaultGrant
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}
	if balance < 0 {
		httpRequestsTotal.WithLabelValues("POST", "/accounts", "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "Balance cannot be negative")
		return
	}

	id, err := h.store.CreateAccount(r.Context(), req.DisplayName, metered, balance)
	if err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/accounts", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "System error creating account")
		return
	}
	httpRequestsTotal.WithLabelValues("POST", "/accounts", "201").Inc()
	respondWithJSON(w, http.StatusCreated, map[string]string{"account_id": id.String()})
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}", "404").Inc()
		respondWithError(w, http.StatusNotFound, "Account not found")
		return
	}
	httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}", "200").Inc()
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}/transactions", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	txs, err := h.store.GetTransactions(r.Context(), id)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}/transactions", "404").Inc()
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}/transactions", "200").Inc()
	respondWithJSON(w, http.StatusOK, txs)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}/balance", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	required, _ := strconv.ParseInt(r.URL.Query().Get("required"), 10, 64)

	check, err := h.meter.CheckBalance(r.Context(), id, required)
	if err != nil {
		// Fails closed: the caller sees hasBalance=false on any read error.
		httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}/balance", "502").Inc()
		respondWithJSON(w, http.StatusBadGateway, check)
		return
	}
	httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}/balance", "200").Inc()
	respondWithJSON(w, http.StatusOK, check)
}

func (h *Handler) EstimateCostHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	op := models.OperationType(q.Get("operation"))

	multiplier := 1.0
	if v := q.Get("multiplier"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil || m < 0 {
			httpRequestsTotal.WithLabelValues("GET", "/credits/estimate", "422").Inc()
			respondWithError(w, http.StatusUnprocessableEntity, "Invalid multiplier")
			return
		}
		multiplier = m
	}

	var custom *int64
	if v := q.Get("custom_amount"); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpRequestsTotal.WithLabelValues("GET", "/credits/estimate", "422").Inc()
			respondWithError(w, http.StatusUnprocessableEntity, "Invalid custom_amount")
			return
		}
		custom = &c
	}

	cost := credits.CalculateCost(op, custom, multiplier)
	httpRequestsTotal.WithLabelValues("GET", "/credits/estimate", "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]any{"operation": op, "cost": cost})
}

func (h *Handler) DeductHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/credits/deduct"))
	defer timer.ObserveDuration()

	var req models.DeductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	if req.Multiplier == 0 {
		req.Multiplier = 1
	}
	if req.Operation == "" {
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "Operation is required")
		return
	}

	result, err := h.meter.Deduct(r.Context(), req)
	if err != nil {
		h.respondDeductError(w, req, err)
		return
	}

	if result.Bypass {
		deductionsTotal.WithLabelValues(string(req.Operation), "bypass").Inc()
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "200").Inc()
		respondWithJSON(w, http.StatusOK, map[string]any{
			"credits_deducted": 0,
			"bypass":           true,
		})
		return
	}

	deductionsTotal.WithLabelValues(string(req.Operation), "success").Inc()
	httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "201").Inc()
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s/transactions", req.AccountID))
	respondWithJSON(w, http.StatusCreated, models.DeductResponse{
		Transaction: *result.Transaction,
		Balance:     result.Balance,
	})
}

func (h *Handler) respondDeductError(w http.ResponseWriter, req models.DeductRequest, err error) {
	var insufficient *credits.InsufficientBalanceError
	switch {
	case errors.Is(err, credits.ErrUnauthenticated):
		deductionsTotal.WithLabelValues(string(req.Operation), "unauthenticated").Inc()
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "401").Inc()
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
	case errors.As(err, &insufficient):
		deductionsTotal.WithLabelValues(string(req.Operation), "insufficient").Inc()
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "402").Inc()
		respondWithJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     "Saldo insuficiente",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.Is(err, service.ErrIdempotencyConflict):
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "409").Inc()
		respondWithError(w, http.StatusConflict, "Request processing in progress")
	case errors.Is(err, service.ErrIdempotencyMismatch):
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	default:
		deductionsTotal.WithLabelValues(string(req.Operation), "error").Inc()
		httpRequestsTotal.WithLabelValues("POST", "/credits/deduct", "500").Inc()
		logging.WithAccountID(h.logger, req.AccountID.String()).
			Error("deduct failed", "operation", req.Operation, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (h *Handler) RefundHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/credits/refund", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.AccountID == uuid.Nil || req.TransactionID == uuid.Nil {
		httpRequestsTotal.WithLabelValues("POST", "/credits/refund", "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "account_id and transaction_id are required")
		return
	}

	resp, err := h.ledger.RefundTransaction(r.Context(), req.AccountID, req.TransactionID)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			httpRequestsTotal.WithLabelValues("POST", "/credits/refund", "404").Inc()
			respondWithError(w, http.StatusNotFound, "Deduction not found")
			return
		}
		httpRequestsTotal.WithLabelValues("POST", "/credits/refund", "500").Inc()
		h.logger.Error("refund failed", "transaction_id", req.TransactionID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	httpRequestsTotal.WithLabelValues("POST", "/credits/refund", "201").Inc()
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) EstimateTimelineHandler(w http.ResponseWriter, r *http.Request) {
	var req models.EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/timeline/estimate", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	segments := timeline.EstimateSegments(req.Script, req.WordsPerSegment, req.WordsPerMinute)
	segments = timeline.Annotate(segments, h.classifier)
	httpRequestsTotal.WithLabelValues("POST", "/timeline/estimate", "200").Inc()
	respondWithJSON(w, http.StatusOK, models.NormalizeResponse{
		Segments: segments,
		Total:    timeline.TotalDuration(segments),
	})
}

func (h *Handler) NormalizeTimelineHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/timeline/normalize", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Locked && req.LockedTotal <= 0 {
		httpRequestsTotal.WithLabelValues("POST", "/timeline/normalize", "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "Locked total must be positive")
		return
	}

	segments := timeline.Normalize(req.Segments, req.Locked, req.LockedTotal)
	segments = timeline.Annotate(segments, h.classifier)
	httpRequestsTotal.WithLabelValues("POST", "/timeline/normalize", "200").Inc()
	respondWithJSON(w, http.StatusOK, models.NormalizeResponse{
		Segments: segments,
		Total:    timeline.TotalDuration(segments),
	})
}

func (h *Handler) RetentionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/timeline/retention", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	report := timeline.ScoreRetention(timeline.Normalize(req.Segments, req.Locked, req.LockedTotal))
	httpRequestsTotal.WithLabelValues("POST", "/timeline/retention", "200").Inc()
	respondWithJSON(w, http.StatusOK, report)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
