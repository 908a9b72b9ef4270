package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/apexlabs/apex-backend/internal/logger"
)

// TaskPool bounds how many remote generation calls run at once so a
// burst of uploads cannot pile unbounded concurrent requests onto the
// slow external services. Every adapter-facing pipeline stage acquires
// a slot before its network call.
type TaskPool struct {
	log *logger.Logger
	sem *semaphore.Weighted
}

func NewTaskPool(log *logger.Logger, size int) *TaskPool {
	if size <= 0 {
		size = 8
	}
	return &TaskPool{
		log: log.With("service", "TaskPool"),
		sem: semaphore.NewWeighted(int64(size)),
	}
}

// Run executes fn once a pool slot is free. Acquisition respects ctx,
// so a canceled request does not queue work.
func (p *TaskPool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("task pool acquire: %w", err)
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
