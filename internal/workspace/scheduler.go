package workspace

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the two periodic background jobs: an opportunistic
// persistence flush and warm-pool top-up. Mutations are not saved
// synchronously: workspace state reaches the store only through this
// periodic flush and the final save in Server.Shutdown.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler builds an empty scheduler; register jobs with the Add methods,
// then Start it.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cron: cron.New(), logger: logger}
}

// AddPersistenceFlush registers the opportunistic flush job.
func (s *Scheduler) AddPersistenceFlush(spec string, w *Workspace, store *Store) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := store.SaveAll(w); err != nil {
			s.logger.Warn("opportunistic flush failed", "err", err)
		}
	})
	return err
}

// AddWarmPoolTopUp registers the warm-pool top-up job.
func (s *Scheduler) AddWarmPoolTopUp(spec string, topUp func()) error {
	_, err := s.cron.AddFunc(spec, topUp)
	return err
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop blocks until any in-flight job finishes, then returns.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
