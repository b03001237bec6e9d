package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api/request"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/service"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/validation"
)

// PerformanceHandler handles performance computation HTTP requests
type PerformanceHandler struct {
	performanceService *service.PerformanceService
}

// NewPerformanceHandler creates a new PerformanceHandler
func NewPerformanceHandler(performanceService *service.PerformanceService) *PerformanceHandler {
	return &PerformanceHandler{
		performanceService: performanceService,
	}
}

// Performance handles GET requests to compute realized performance over the
// stored transaction history.
//
// Endpoint: GET /api/performance?institution=&from=&to=
// Response: 200 OK with the performance result; a non-empty warnings list
// is informative, not failing.
func (h *PerformanceHandler) Performance(w http.ResponseWriter, r *http.Request) {
	query := request.PerformanceQuery{
		Institution: r.URL.Query().Get("institution"),
		From:        r.URL.Query().Get("from"),
		To:          r.URL.Query().Get("to"),
	}

	filter, err := validation.ValidatePerformanceQuery(query)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid performance query",
			"detail": err.Error(),
		})
		return
	}

	result, err := h.performanceService.ComputeFromStore(r.Context(), nil, filter)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			respondJSON(w, http.StatusRequestTimeout, map[string]string{
				"error": "computation cancelled",
			})
			return
		}
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "failed to compute performance",
			"detail": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// PositionsResponse wraps the reconstructed holdings with their valuation in
// the settlement currency.
type PositionsResponse struct {
	AsOf               string                 `json:"asOf"`
	SettlementCurrency string                 `json:"settlementCurrency"`
	TotalValue         float64                `json:"totalValue"`
	Positions          []model.ValuedPosition `json:"positions"`
	Warnings           []model.Warning        `json:"warnings"`
}

// PositionHandler handles position reconstruction HTTP requests
type PositionHandler struct {
	timelineService    *service.TimelineService
	transactionService *service.TransactionService
	performanceService *service.PerformanceService
}

// NewPositionHandler creates a new PositionHandler
func NewPositionHandler(timelineService *service.TimelineService, transactionService *service.TransactionService, performanceService *service.PerformanceService) *PositionHandler {
	return &PositionHandler{
		timelineService:    timelineService,
		transactionService: transactionService,
		performanceService: performanceService,
	}
}

// Positions handles GET requests to reconstruct holdings as of a date,
// valued in the settlement currency at the latest available rates.
//
// Endpoint: GET /api/positions?asOf=2006-01-02&institution=
// An omitted asOf reconstructs current holdings.
func (h *PositionHandler) Positions(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := validation.ParseTime(raw)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{
				"error":  "invalid asOf date",
				"detail": err.Error(),
			})
			return
		}
		asOf = parsed
	}

	transactions, err := h.transactionService.GetTransactions(r.URL.Query().Get("institution"))
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "failed to load transactions",
			"detail": err.Error(),
		})
		return
	}

	positions, warnings, err := h.timelineService.PositionsAsOf(transactions, asOf)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "failed to reconstruct positions",
			"detail": err.Error(),
		})
		return
	}

	valued, valuationWarnings := h.performanceService.ValuePositions(r.Context(), positions, asOf)
	warnings = append(warnings, valuationWarnings...)

	total := 0.0
	for _, p := range valued {
		total += p.MarketValue
	}

	respondJSON(w, http.StatusOK, PositionsResponse{
		AsOf:               asOf.Format("2006-01-02"),
		SettlementCurrency: h.performanceService.SettlementCurrency(),
		TotalValue:         total,
		Positions:          valued,
		Warnings:           warnings,
	})
}
