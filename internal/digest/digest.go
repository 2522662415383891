// Package digest writes a daily note summarizing what was synced since the
// previous run.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/tgvault/internal/vault"
)

// Service runs the digest job on a cron schedule with seconds granularity,
// e.g. "0 0 21 * * *" for nine in the evening.
type Service struct {
	schedule string
	vault    *vault.Vault
	log      zerolog.Logger

	cron *rcron.Cron
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewService(schedule string, v *vault.Vault, log zerolog.Logger) *Service {
	return &Service{
		schedule: schedule,
		vault:    v,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.last = s.now()
	s.mu.Unlock()

	s.cron = rcron.New(rcron.WithSeconds())
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("register digest job %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("digest started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// run writes one digest note covering the window since the previous run. A
// window with no synced notes writes nothing.
func (s *Service) run() {
	s.mu.Lock()
	since := s.last
	now := s.now()
	s.last = now
	s.mu.Unlock()

	created := s.vault.CreatedSince(since)
	if len(created) == 0 {
		s.log.Debug().Msg("digest skipped, nothing synced")
		return
	}

	path := fmt.Sprintf("Telegram/digests/%s.md", now.Format("2006-01-02"))
	if err := s.vault.AppendNote(path, s.render(created, since, now)); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("digest write failed")
		return
	}
	s.log.Info().Int("notes", len(created)).Str("path", path).Msg("digest written")
}

func (s *Service) render(created []vault.CreatedNote, since, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sync digest %s\n\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "%d notes synced since %s:\n\n", len(created), since.Format("2006-01-02 15:04"))
	for _, n := range created {
		fmt.Fprintf(&b, "- [[%s]] (%s)\n", strings.TrimSuffix(n.Path, ".md"), n.At.Format("15:04"))
	}
	return b.String()
}
