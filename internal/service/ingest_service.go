package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
)

// IngestSummary reports the outcome of one ingestion run.
type IngestSummary struct {
	Fetched  int             `json:"fetched"`
	Imported int             `json:"imported"`
	Warnings []model.Warning `json:"warnings"`
}

// IngestService pulls raw activity records from the configured transaction
// sources, normalizes them, and persists the canonical records. Duplicate
// records across overlapping statements are dropped by the deduplication
// key, so re-running ingestion is always safe.
type IngestService struct {
	sources      []TransactionSource
	normalizer   *NormalizerService
	transactions *repository.TransactionRepository
}

// NewIngestService creates a new IngestService.
func NewIngestService(sources []TransactionSource, normalizer *NormalizerService, transactions *repository.TransactionRepository) *IngestService {
	return &IngestService{
		sources:      sources,
		normalizer:   normalizer,
		transactions: transactions,
	}
}

// IngestAll fetches from every configured source. Each source returns its
// full statement: overlap with earlier runs is absorbed by the dedup key,
// and a backdated record a broker adds to a later statement still imports.
// A source failing is a degradation, not an abort: its records are skipped
// for this run and a warning records why, while the remaining sources still
// import.
func (s *IngestService) IngestAll(ctx context.Context) (IngestSummary, error) {
	summary := IngestSummary{Warnings: []model.Warning{}}

	for _, source := range s.sources {
		records, err := source.Fetch(ctx, time.Time{})
		if err != nil {
			log.Printf("source %s unavailable: %v", source.Institution(), err)
			summary.Warnings = append(summary.Warnings, model.Warning{
				Code:    model.WarningSourceUnavailable,
				Message: fmt.Sprintf("source %s unavailable: %v", source.Institution(), err),
				Date:    time.Now().UTC().Format("2006-01-02"),
			})
			continue
		}

		imported, err := s.saveRecords(records)
		if err != nil {
			return summary, err
		}

		summary.Fetched += len(records)
		summary.Imported += imported
	}

	return summary, nil
}

// AddManualRecords ingests manually entered backfill records, typically to
// supply the opening trades behind orphaned closes. They flow through the
// same normalization and deduplication as provider records.
func (s *IngestService) AddManualRecords(records []model.SourceRecord) (IngestSummary, error) {
	for i := range records {
		if records[i].Institution == "" {
			records[i].Institution = "manual"
		}
	}

	imported, err := s.saveRecords(records)
	if err != nil {
		return IngestSummary{}, err
	}

	return IngestSummary{
		Fetched:  len(records),
		Imported: imported,
		Warnings: []model.Warning{},
	}, nil
}

func (s *IngestService) saveRecords(records []model.SourceRecord) (int, error) {
	normalized := s.normalizer.Normalize(records)

	imported, err := s.transactions.SaveTransactions(normalized)
	if err != nil {
		return 0, fmt.Errorf("failed to persist normalized transactions: %w", err)
	}

	return imported, nil
}
