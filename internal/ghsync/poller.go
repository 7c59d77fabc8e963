package ghsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/repository"
)

// maxConcurrentSyncs bounds how many links one poll round touches at once.
const maxConcurrentSyncs = 8

// Poller periodically reconciles every active link and recovers pushes that
// a crash left in pending-push. Per-link ordering is the engine's job; the
// poller only fans out.
type Poller struct {
	engine *Engine
	links  repository.LinkRepository
	period time.Duration
	logger *slog.Logger
}

func NewPoller(engine *Engine, links repository.LinkRepository, period time.Duration, logger *slog.Logger) *Poller {
	if period <= 0 {
		period = 5 * time.Minute
	}
	return &Poller{engine: engine, links: links, period: period, logger: logger}
}

// Run blocks until ctx is cancelled. The first thing it does is recover
// pending pushes — a pending-push link on startup means the process died
// between committing the link and finishing the push, and retrying is safe
// because an already-created remote issue leaves the link with a remote
// number and Push no-ops.
func (p *Poller) Run(ctx context.Context) {
	p.recoverPending(ctx)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sync poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) recoverPending(ctx context.Context) {
	pending, err := p.links.ListPendingLinks(ctx)
	if err != nil {
		p.logger.Error("failed to list pending links", slog.String("error", err.Error()))
		return
	}
	if len(pending) == 0 {
		return
	}

	p.logger.Info("recovering interrupted pushes", slog.Int("count", len(pending)))
	for _, link := range pending {
		if err := p.engine.Push(ctx, link.IssueID); err != nil {
			p.logger.Warn("pending push recovery failed",
				slog.Int64("issueID", link.IssueID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	active, err := p.links.ListActiveLinks(ctx)
	if err != nil {
		p.logger.Error("failed to list active links", slog.String("error", err.Error()))
		return
	}

	sem := make(chan struct{}, maxConcurrentSyncs)
	var wg sync.WaitGroup
	for _, link := range active {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(issueID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.engine.Reconcile(ctx, issueID)
			switch {
			case err == nil:
			case errors.Is(err, apperror.ErrSyncTransient):
				// Next round retries; nothing to escalate.
				p.logger.Debug("reconcile deferred",
					slog.Int64("issueID", issueID),
					slog.String("error", err.Error()),
				)
			default:
				p.logger.Warn("reconcile failed",
					slog.Int64("issueID", issueID),
					slog.String("error", err.Error()),
				)
			}
		}(link.IssueID)
	}
	wg.Wait()
}
