package service

import "context"

type Publisher interface {
	PublishUpdate(ctx context.Context, locality string) error
}
