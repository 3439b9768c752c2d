package service

import (
	"context"

	"github.com/langowen/metalrates/internal/entities"
)

type UpstreamClient interface {
	FetchRates(ctx context.Context, locality string) (*entities.RateSnapshot, error)
}
