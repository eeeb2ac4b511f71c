package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/service"
)

// SweepJob periodically removes expired records and stale operator sessions.
// Records expire by inactivity: any write refreshes the clock, so only
// abandoned flows are removed.
type SweepJob struct {
	lifecycle *service.Lifecycle
	operator  *service.Operator
	maxAge    time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewSweepJob(lifecycle *service.Lifecycle, operator *service.Operator, maxAge, interval time.Duration) *SweepJob {
	return &SweepJob{
		lifecycle: lifecycle,
		operator:  operator,
		maxAge:    maxAge,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("maxAge", j.maxAge).Msg("sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()

	count, err := j.lifecycle.Sweep(ctx, j.maxAge, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired records")
	} else if count > 0 {
		log.Info().Int("count", count).Msg("swept expired records")
	}

	if j.operator != nil {
		if n := j.operator.SweepExpired(now); n > 0 {
			log.Info().Int("count", n).Msg("swept expired operator sessions")
		}
	}
}
