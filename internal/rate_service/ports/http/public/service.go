package public

import (
	"context"

	"github.com/langowen/metalrates/internal/rate_service/service"
)

type Service interface {
	GetRates(ctx context.Context) (*service.Result, error)
}
