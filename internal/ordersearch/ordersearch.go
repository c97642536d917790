package ordersearch

import (
	"context"

	"github.com/kursadbilgin/fieldops/internal/domain"
)

// Searcher is the outbound port to the routing API's order search.
type Searcher interface {
	SearchOrders(ctx context.Context, req domain.BatchRequest) (*domain.BatchResponse, error)
}
