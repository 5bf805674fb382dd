package services

import (
	"context"
	"fmt"

	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/repository"
)

// DefaultPreviewRows is the number of sample rows shown per table
const DefaultPreviewRows = 5

// StatusService reports what the store currently holds
type StatusService struct {
	store repository.Inspector
	model string
}

// NewStatusService creates a StatusService for the configured embedding model
func NewStatusService(store repository.Inspector, model string) *StatusService {
	return &StatusService{store: store, model: model}
}

// Status returns row counts and a preview of each table
func (s *StatusService) Status(ctx context.Context) (*models.StatusResponse, error) {
	counts, err := s.store.TableCounts(ctx, DefaultPreviewRows)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect store: %w", err)
	}
	return &models.StatusResponse{Model: s.model, Tables: counts}, nil
}
