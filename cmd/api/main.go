package main

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sceneforge/sceneledger/internal/api"
	"github.com/sceneforge/sceneledger/internal/config"
	"github.com/sceneforge/sceneledger/internal/credits"
	"github.com/sceneforge/sceneledger/internal/logging"
	"github.com/sceneforge/sceneledger/internal/service"
	"github.com/sceneforge/sceneledger/internal/store"
	"github.com/sceneforge/sceneledger/internal/timeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("error").Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	st, err := store.NewStore(cfg.DBSource)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Initialize Layers
	ledger := service.NewLedgerService(st.Db)
	meter := credits.NewMeter(ledger, logging.WithComponent(logger, "credits"))
	handler := api.NewHandler(st, ledger, meter, timeline.NewKeywordClassifier(), logging.WithComponent(logger, "api"))

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", handler.CreateAccountHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}", handler.GetAccountHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/balance", handler.GetBalanceHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/transactions", handler.GetTransactionsHandler).Methods("GET")
	apiV1.HandleFunc("/credits/estimate", handler.EstimateCostHandler).Methods("GET")
	apiV1.HandleFunc("/credits/deduct", handler.DeductHandler).Methods("POST")
	apiV1.HandleFunc("/credits/refund", handler.RefundHandler).Methods("POST")
	apiV1.HandleFunc("/timeline/estimate", handler.EstimateTimelineHandler).Methods("POST")
	apiV1.HandleFunc("/timeline/normalize", handler.NormalizeTimelineHandler).Methods("POST")
	apiV1.HandleFunc("/timeline/retention", handler.RetentionHandler).Methods("POST")

	logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
