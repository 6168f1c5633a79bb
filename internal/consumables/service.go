package consumables

import (
	"context"

	"github.com/feemaison/bakery-erp/internal/shared"
)

// Service answers packaging questions for finished goods.
type Service struct {
	reader Reader
}

// NewService constructs Service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// AllocateConsumables loads an active category and allocates packaging for quantity.
func (s *Service) AllocateConsumables(ctx context.Context, categoryID, quantity int64) ([]Allocation, error) {
	return AllocateFor(ctx, s.reader, categoryID, quantity)
}

// AllocateFor is AllocateConsumables against an explicit reader, such as one bound to a transaction.
func AllocateFor(ctx context.Context, reader Reader, categoryID, quantity int64) ([]Allocation, error) {
	category, err := reader.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if !category.Active {
		return nil, shared.E(shared.KindInvalidState, "consumables.allocate", category.Name, "category %d is inactive", categoryID)
	}
	return Allocate(category.Ranges, quantity), nil
}
