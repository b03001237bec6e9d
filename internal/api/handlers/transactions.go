package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api/request"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/service"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/validation"
)

// TransactionHandler handles transaction-related HTTP requests
type TransactionHandler struct {
	transactionService *service.TransactionService
	ingestService      *service.IngestService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService *service.TransactionService, ingestService *service.IngestService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		ingestService:      ingestService,
	}
}

// Transactions handles GET requests to list the canonical transaction
// history in replay order.
//
// Endpoint: GET /api/transactions?institution=
func (h *TransactionHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.transactionService.GetTransactions(r.URL.Query().Get("institution"))
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "failed to retrieve transactions",
			"detail": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, transactions)
}

// Institutions handles GET requests to list institutions with stored
// history.
//
// Endpoint: GET /api/transactions/institutions
func (h *TransactionHandler) Institutions(w http.ResponseWriter, r *http.Request) {
	institutions, err := h.transactionService.GetInstitutions()
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "failed to retrieve institutions",
			"detail": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, institutions)
}

// Backfill handles POST requests adding manually entered records, typically
// opening trades that resolve orphaned closes.
//
// Endpoint: POST /api/transactions/backfill
// Body: JSON array of manual records
func (h *TransactionHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var requests []request.ManualRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&requests); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid request body",
			"detail": err.Error(),
		})
		return
	}

	records := make([]model.SourceRecord, 0, len(requests))
	for _, req := range requests {
		record, err := validation.ValidateManualRecord(req)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{
				"error":  "invalid backfill record",
				"detail": err.Error(),
			})
			return
		}
		records = append(records, record)
	}

	summary, err := h.ingestService.AddManualRecords(records)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "failed to save backfill records",
			"detail": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusCreated, summary)
}

// Import handles POST requests triggering an ingestion run across all
// configured sources.
//
// Endpoint: POST /api/transactions/import
func (h *TransactionHandler) Import(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ingestService.IngestAll(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "ingestion failed",
			"detail": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
