package service

import (
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
)

// TransactionService exposes the stored canonical transaction history.
type TransactionService struct {
	transactions *repository.TransactionRepository
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(transactions *repository.TransactionRepository) *TransactionService {
	return &TransactionService{transactions: transactions}
}

// GetTransactions returns the canonical transaction history in replay order,
// optionally filtered by institution.
func (s *TransactionService) GetTransactions(institution string) ([]model.Transaction, error) {
	return s.transactions.GetTransactions(institution, time.Time{})
}

// GetInstitutions returns the distinct institutions with stored history.
func (s *TransactionService) GetInstitutions() ([]string, error) {
	return s.transactions.GetInstitutions()
}
