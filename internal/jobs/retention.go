package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lukasbauer/livescribe/internal/notifications"
)

// Purger deletes ended sessions older than cutoff. *store.Store implements it.
type Purger interface {
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob removes stored transcripts once they are older than the
// retention window. It runs on a configurable interval (default: 1 hour).
type RetentionJob struct {
	purger    Purger
	discord   *notifications.Discord
	logger    *log.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewRetentionJob creates a new retention job. discord may be nil.
func NewRetentionJob(p Purger, discord *notifications.Discord, logger *log.Logger, retention, interval time.Duration) *RetentionJob {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return &RetentionJob{
		purger:    p,
		discord:   discord,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background job.
func (j *RetentionJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("RetentionJob: started (retention=%v interval=%v)", j.retention, j.interval)
}

// Stop gracefully stops the background job.
func (j *RetentionJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("RetentionJob: stopped")
}

func (j *RetentionJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			return
		}
	}
}

func (j *RetentionJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	removed, err := j.purger.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		j.logger.Printf("RetentionJob: sweep failed: %v", err)
		return
	}
	if removed == 0 {
		return
	}
	j.logger.Printf("RetentionJob: removed %d sessions ended before %s", removed, cutoff.Format(time.RFC3339))
	j.discord.NotifyRetentionSweep(ctx, removed, cutoff)
}
