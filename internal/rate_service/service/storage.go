package service

import (
	"context"

	"github.com/langowen/metalrates/internal/entities"
)

type Storage interface {
	GetLatest(ctx context.Context, locality string) (*entities.RateSnapshot, error)
	SaveLatest(ctx context.Context, snapshot *entities.RateSnapshot) error
}
