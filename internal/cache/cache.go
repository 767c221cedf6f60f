package cache

import (
	"context"
	"time"

	"github.com/gunjou/be-toko-yani/internal/domain"
)

// DebtTotalCache holds per-customer outstanding-debt totals. The till reads
// a customer's total before extending more credit, so the lookup is hot.
type DebtTotalCache interface {
	Get(ctx context.Context, customerID int64) (*domain.CustomerDebtTotal, bool, error)
	Set(ctx context.Context, customerID int64, value *domain.CustomerDebtTotal, ttl time.Duration) error
	Invalidate(ctx context.Context, customerID int64) error
}

type NoopDebtTotalCache struct{}

func (NoopDebtTotalCache) Get(_ context.Context, _ int64) (*domain.CustomerDebtTotal, bool, error) {
	return nil, false, nil
}

func (NoopDebtTotalCache) Set(_ context.Context, _ int64, _ *domain.CustomerDebtTotal, _ time.Duration) error {
	return nil
}

func (NoopDebtTotalCache) Invalidate(_ context.Context, _ int64) error {
	return nil
}
