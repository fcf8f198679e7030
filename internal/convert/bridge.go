package convert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner performs one blocking conversion.
type Runner interface {
	Convert(inputPath, outputDir string) (Output, error)
}

// Bridge runs conversions off the calling goroutine. Each Submit starts one
// worker; at most workers conversions tile at the same time.
type Bridge struct {
	runner Runner
	slots  *semaphore.Weighted
	logger *zap.Logger
}

// NewBridge creates a bridge around runner.
func NewBridge(runner Runner, workers int, logger *zap.Logger) *Bridge {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		runner: runner,
		slots:  semaphore.NewWeighted(int64(workers)),
		logger: logger,
	}
}

// Submit starts converting inputPath into outputDir and returns immediately.
// ctx only bounds the wait for a free worker slot: once the conversion has
// started it runs to completion.
func (b *Bridge) Submit(ctx context.Context, inputPath, outputDir string) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		if err := b.slots.Acquire(ctx, 1); err != nil {
			f.err = fmt.Errorf("waiting for conversion worker: %w", err)
			return
		}
		defer b.slots.Release(1)

		start := time.Now()
		f.out, f.err = b.run(inputPath, outputDir)

		fields := []zap.Field{
			zap.String("input", inputPath),
			zap.Duration("duration", time.Since(start)),
		}
		if f.err != nil {
			b.logger.Warn("conversion failed", append(fields, zap.Error(f.err))...)
			return
		}
		b.logger.Debug("conversion finished", append(fields,
			zap.String("descriptor", f.out.Descriptor),
			zap.Int("tiles", f.out.Stats.Tiles),
		)...)
	}()

	return f
}

func (b *Bridge) run(inputPath, outputDir string) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion panicked: %v", r)
		}
	}()
	return b.runner.Convert(inputPath, outputDir)
}

// Future is the eventual result of a submitted conversion.
type Future struct {
	done chan struct{}
	out  Output
	err  error
}

// Done is closed once the conversion has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the conversion finishes or ctx ends. Abandoning the wait
// does not stop the conversion.
func (f *Future) Wait(ctx context.Context) (Output, error) {
	select {
	case <-f.done:
		return f.out, f.err
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}
