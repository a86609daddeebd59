package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sceneforge/sceneledger/internal/credits"
	"github.com/sceneforge/sceneledger/internal/logging"
	"github.com/sceneforge/sceneledger/internal/models"
	"github.com/sceneforge/sceneledger/internal/timeline"
)

// stubLedger backs the meter in handler tests without a database.
type stubLedger struct {
	account   *models.Account
	deductErr error
}

func (s *stubLedger) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if s.account == nil {
		return nil, fmt.Errorf("no such account")
	}
	return s.account, nil
}

func (s *stubLedger) DeductIfSufficient(ctx context.Context, req models.DeductRequest, amount int64) (*models.DeductResponse, error) {
	if s.deductErr != nil {
		return nil, s.deductErr
	}
	if s.account.Balance < amount {
		return nil, &credits.InsufficientBalanceError{Required: amount, Available: s.account.Balance}
	}
	s.account.Balance -= amount
	return &models.DeductResponse{
		Transaction: models.CreditTransaction{ID: uuid.New(), AccountID: req.AccountID, Amount: -amount},
		Balance:     s.account.Balance,
	}, nil
}

func (s *stubLedger) Grant(ctx context.Context, accountID uuid.UUID, amount int64, op models.OperationType, refundOf uuid.UUID) (*models.DeductResponse, error) {
	s.account.Balance += amount
	return &models.DeductResponse{Balance: s.account.Balance}, nil
}

func testRouter(ledger credits.Ledger) *mux.Router {
	meter := credits.NewMeter(ledger, logging.NewLogger("error"))
	h := NewHandler(nil, nil, meter, timeline.NewKeywordClassifier(), logging.NewLogger("error"))

	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheckHandler)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/accounts/{id}/balance", h.GetBalanceHandler).Methods("GET")
	api.HandleFunc("/credits/estimate", h.EstimateCostHandler).Methods("GET")
	api.HandleFunc("/credits/deduct", h.DeductHandler).Methods("POST")
	api.HandleFunc("/timeline/estimate", h.EstimateTimelineHandler).Methods("POST")
	api.HandleFunc("/timeline/normalize", h.NormalizeTimelineHandler).Methods("POST")
	api.HandleFunc("/timeline/retention", h.RetentionHandler).Methods("POST")
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	w := doJSON(t, testRouter(&stubLedger{}), "GET", "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestEstimateCostHandler(t *testing.T) {
	w := doJSON(t, testRouter(&stubLedger{}), "GET",
		"/api/v1/credits/estimate?operation=video_generation&multiplier=1.5", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Cost int64 `json:"cost"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cost != 30 {
		t.Errorf("cost = %d, want 30", resp.Cost)
	}
}

func TestDeductHandler_Success(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Balance: 50, Metered: true}
	router := testRouter(&stubLedger{account: acc})

	w := doJSON(t, router, "POST", "/api/v1/credits/deduct", models.DeductRequest{
		AccountID: acc.ID,
		Operation: models.OpScriptGeneration,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp models.DeductResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Balance != 45 {
		t.Errorf("balance = %d, want 45", resp.Balance)
	}
}

func TestDeductHandler_InsufficientBalance(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Balance: 2, Metered: true}
	router := testRouter(&stubLedger{account: acc})

	w := doJSON(t, router, "POST", "/api/v1/credits/deduct", models.DeductRequest{
		AccountID: acc.ID,
		Operation: models.OpScriptGeneration,
	}, nil)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Error     string `json:"error"`
		Required  int64  `json:"required"`
		Available int64  `json:"available"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Saldo insuficiente" || resp.Required != 5 || resp.Available != 2 {
		t.Errorf("resp = %+v, want shortfall 5/2", resp)
	}
}

func TestDeductHandler_Bypass(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Balance: 0, Metered: false}
	router := testRouter(&stubLedger{account: acc})

	w := doJSON(t, router, "POST", "/api/v1/credits/deduct", models.DeductRequest{
		AccountID: acc.ID,
		Operation: models.OpVideoGeneration,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if acc.Balance != 0 {
		t.Errorf("balance = %d, bypass must not charge", acc.Balance)
	}
}

func TestDeductHandler_Unauthenticated(t *testing.T) {
	router := testRouter(&stubLedger{})
	w := doJSON(t, router, "POST", "/api/v1/credits/deduct", models.DeductRequest{
		Operation: models.OpScriptGeneration,
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestDeductHandler_MissingOperation(t *testing.T) {
	router := testRouter(&stubLedger{})
	w := doJSON(t, router, "POST", "/api/v1/credits/deduct", map[string]any{
		"account_id": uuid.New(),
	}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestBalanceHandler(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Balance: 7, Metered: true}
	router := testRouter(&stubLedger{account: acc})

	w := doJSON(t, router, "GET",
		fmt.Sprintf("/api/v1/accounts/%s/balance?required=5", acc.ID), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var check credits.BalanceCheck
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !check.HasBalance || check.Balance != 7 {
		t.Errorf("check = %+v, want has_balance with 7", check)
	}
}

func TestTimelineEstimateHandler(t *testing.T) {
	router := testRouter(&stubLedger{})
	w := doJSON(t, router, "POST", "/api/v1/timeline/estimate", models.EstimateRequest{
		Script:          "um dois três quatro cinco seis sete oito",
		WordsPerSegment: 4,
		WordsPerMinute:  120,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp models.NormalizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(resp.Segments))
	}
	if resp.Total != 4 {
		t.Errorf("total = %f, want 4", resp.Total)
	}
}

func TestTimelineNormalizeHandler_LockValidation(t *testing.T) {
	router := testRouter(&stubLedger{})
	w := doJSON(t, router, "POST", "/api/v1/timeline/normalize", models.NormalizeRequest{
		Segments: []models.Segment{{Number: 1, Duration: 3}},
		Locked:   true,
	}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for locked without total", w.Code)
	}
}

func TestTimelineRetentionHandler(t *testing.T) {
	router := testRouter(&stubLedger{})
	w := doJSON(t, router, "POST", "/api/v1/timeline/retention", models.NormalizeRequest{
		Segments: []models.Segment{
			{Number: 1, Duration: 5, Emotion: "tensão", RetentionTrigger: "curiosity"},
			{Number: 2, Duration: 5, Emotion: "choque", RetentionTrigger: "mystery"},
			{Number: 3, Duration: 5, Emotion: "surpresa", RetentionTrigger: "revelation"},
		},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var report models.RetentionReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Score != 100 {
		t.Errorf("score = %d, want 100", report.Score)
	}
}
