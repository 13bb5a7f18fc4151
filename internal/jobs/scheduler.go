package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"docgate/internal/config"
	"docgate/internal/models"
)

const pollBatch = 100

type SessionSweeper interface {
	SweepIdle(ctx context.Context) (int64, error)
}

type SubscriptionSweeper interface {
	ExpireSubscriptions(ctx context.Context) (int64, error)
}

type ProcessingLister interface {
	ListProcessing(ctx context.Context, limit int) ([]models.Document, error)
}

type PollQueue interface {
	EnqueuePoll(ctx context.Context, documentID string) error
}

type Scheduler struct {
	cron          *cron.Cron
	specs         config.JobsConfig
	sessions      SessionSweeper
	subscriptions SubscriptionSweeper
	documents     ProcessingLister
	queue         PollQueue
	log           zerolog.Logger
}

func NewScheduler(
	specs config.JobsConfig,
	sessions SessionSweeper,
	subscriptions SubscriptionSweeper,
	documents ProcessingLister,
	queue PollQueue,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()),
		specs:         specs,
		sessions:      sessions,
		subscriptions: subscriptions,
		documents:     documents,
		queue:         queue,
		log:           log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.specs.SessionSweep, s.SweepSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.specs.SubscriptionSweep, s.ExpireSubscriptions); err != nil {
		return err
	}
	if s.queue != nil {
		if _, err := s.cron.AddFunc(s.specs.JobPoll, s.EnqueuePolls); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs up to five seconds.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) SweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.sessions.SweepIdle(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep idle sessions failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("idle sessions deactivated")
	}
}

func (s *Scheduler) ExpireSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.subscriptions.ExpireSubscriptions(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("expire subscriptions failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("subscriptions expired")
	}
}

func (s *Scheduler) EnqueuePolls() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docs, err := s.documents.ListProcessing(ctx, pollBatch)
	if err != nil {
		s.log.Error().Err(err).Msg("list processing documents failed")
		return
	}
	for _, doc := range docs {
		if err := s.queue.EnqueuePoll(ctx, doc.ID); err != nil {
			s.log.Error().Err(err).Str("document_id", doc.ID).Msg("enqueue poll failed")
		}
	}
}
