package port

import (
	"context"
	"time"

	"github.com/oejp/kraken-bridge/internal/domain"
)

// AccountFetcher is the upstream API surface the refresh coordinator
// depends on.
type AccountFetcher interface {
	GetAccountNumber(ctx context.Context) (string, error)
	GetAccountData(ctx context.Context, accountNumber string, start, end time.Time) (*domain.AccountSnapshot, error)
}
