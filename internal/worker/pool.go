// Package worker runs independent jobs, such as scanning several disk images,
// with bounded concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Task is one input and the outcome of processing it.
type Task[T any, R any] struct {
	Input  T
	Result R
	Err    error
}

// ProcessFunc processes a single input.
type ProcessFunc[T any, R any] func(ctx context.Context, input T) (R, error)

// Pool runs a ProcessFunc over inputs on at most workers goroutines.
type Pool[T any, R any] struct {
	workers int
	process ProcessFunc[T, R]
}

// NewPool creates a pool. Fewer than one worker means one.
func NewPool[T any, R any](workers int, fn ProcessFunc[T, R]) *Pool[T, R] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T, R]{
		workers: workers,
		process: fn,
	}
}

// Execute processes every input and returns the tasks in input order. A
// failed task does not stop the others. Inputs not yet started when ctx is
// cancelled carry the context error.
func (p *Pool[T, R]) Execute(ctx context.Context, inputs []T) []Task[T, R] {
	tasks := make([]Task[T, R], len(inputs))

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i, in := range inputs {
		tasks[i].Input = in
		if err := ctx.Err(); err != nil {
			tasks[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				tasks[i].Err = err
				return nil
			}
			tasks[i].Result, tasks[i].Err = p.process(ctx, in)
			if tasks[i].Err != nil {
				log.Error().Err(tasks[i].Err).Int("index", i).Msg("Task failed")
			}
			return nil
		})
	}

	_ = g.Wait()
	return tasks
}

// Errors joins the errors of failed tasks, or returns nil if all succeeded.
func Errors[T any, R any](tasks []Task[T, R]) error {
	var errs []error
	for _, t := range tasks {
		if t.Err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", t.Input, t.Err))
		}
	}
	return errors.Join(errs...)
}
