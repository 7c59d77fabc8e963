package ghsync

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/xdest/devboard/internal/model"
)

func TestPoller_RecoversPendingPushOnStartup(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	poller := NewPoller(f.engine, f.links, time.Hour, logger)

	// The link is in pending-push, as if the process died mid-push.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for f.links.byIssue[10].State != model.LinkSynced {
		select {
		case <-deadline:
			t.Fatal("pending link was never recovered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on context cancellation")
	}

	if f.links.byIssue[10].RemoteNumber != 42 {
		t.Errorf("RemoteNumber = %d, want 42", f.links.byIssue[10].RemoteNumber)
	}
}

func TestPoller_ReconcilesActiveLinks(t *testing.T) {
	f := pushFixture(t)
	f.remote.reactions = append(f.remote.reactions, reaction(300, "+1"))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	poller := NewPoller(f.engine, f.links, time.Hour, logger)

	poller.pollOnce(context.Background())

	if len(f.recorder.events) != 1 {
		t.Errorf("recorded %d events, want 1", len(f.recorder.events))
	}
}
