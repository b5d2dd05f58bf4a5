// Package metrics periodically logs a snapshot of the forum's size, the
// same way the reference implementation's Tracker reported state on an
// interval instead of per-request.
package metrics

import (
	"context"
	"time"

	units "github.com/docker/go-units"

	"github.com/pressboard/pressboard/pkg/config"
	"github.com/pressboard/pressboard/pkg/forum"
	"github.com/pressboard/pressboard/pkg/logging"
)

// Tracker logs a periodic snapshot of forum size and active connection
// count.
type Tracker struct {
	forum             *forum.Forum
	log               logging.Logger
	activeConnections func() int
}

// NewTracker constructs a Tracker bound to f. activeConnections may be
// nil if the caller has no connection count to report.
func NewTracker(f *forum.Forum, log logging.Logger, activeConnections func() int) *Tracker {
	if activeConnections == nil {
		activeConnections = func() int { return 0 }
	}
	return &Tracker{forum: f, log: log, activeConnections: activeConnections}
}

// Run logs a stats snapshot every config.StatsLogInterval until ctx is
// canceled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(config.StatsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.logSnapshot()
		}
	}
}

func (t *Tracker) logSnapshot() {
	s := t.forum.Stats()
	t.log.WithFields(map[string]interface{}{
		"threads":      s.ThreadCount,
		"posts":        s.PostCount,
		"hidden_posts": s.HiddenCount,
		"connections":  t.activeConnections(),
	}).Infof("forum snapshot (%s of comment text)", units.HumanSize(float64(s.CommentBytes)))
}
