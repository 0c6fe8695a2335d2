package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vk/taskgrid/async"
	"github.com/vk/taskgrid/gridfile"
	"github.com/vk/taskgrid/internal/ctxlog"
)

// Run executes a grid file end to end: load, build, run, report.
func Run(ctx context.Context, cfg *Config, logW io.Writer) error {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("runner started", "grid", cfg.GridPath)

	def, err := gridfile.Load(cfg.GridPath)
	if err != nil {
		return fmt.Errorf("failed to load grid file: %w", err)
	}
	if cfg.Workers > 0 {
		def.Workers = cfg.Workers
	}
	logger.Debug("grid definition loaded", "tasks", len(def.Tasks), "workers", def.Workers)

	g, err := gridfile.Build(ctx, def, gridfile.Builtins())
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	if g.Empty() {
		logger.Warn("no tasks found in grid, nothing to execute")
		return nil
	}

	logger.Info("starting concurrent execution", "tasks", g.Len())
	began := time.Now()
	if err := <-async.Start(ctx, g); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	logger.Info("execution finished", "elapsed", time.Since(began))
	return nil
}
