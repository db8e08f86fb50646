package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"poen/internal/ledger"
	plog "poen/internal/log"
)

// IngestSchedulerConfig holds configuration for the periodic ingestion
type IngestSchedulerConfig struct {
	// Interval is how often every project is ingested (default: 1h)
	Interval time.Duration

	// Concurrency is the max number of projects ingested at once (default: 4)
	Concurrency int

	// RefreshIBANs also refreshes each project's IBAN records (default: true)
	RefreshIBANs bool
}

// DefaultIngestSchedulerConfig returns sensible defaults
func DefaultIngestSchedulerConfig() IngestSchedulerConfig {
	return IngestSchedulerConfig{
		Interval:     time.Hour,
		Concurrency:  4,
		RefreshIBANs: true,
	}
}

// IngestNotifier is told about every finished project run.
type IngestNotifier interface {
	PaymentsIngested(ctx context.Context, report IngestReport) error
}

// IngestScheduler runs ingestion for every project on an interval and on
// request. A project is never ingested twice at the same time.
type IngestScheduler struct {
	projects  ledger.ProjectReader
	ingestor  *Ingestor
	directory *IBANDirectory
	notifier  IngestNotifier
	config    IngestSchedulerConfig

	active sync.Map // project id -> struct{}

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce *sync.Once
}

// NewIngestScheduler creates a scheduler. directory and notifier may be nil.
func NewIngestScheduler(
	projects ledger.ProjectReader,
	ingestor *Ingestor,
	directory *IBANDirectory,
	notifier IngestNotifier,
	config IngestSchedulerConfig,
) *IngestScheduler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &IngestScheduler{
		projects:  projects,
		ingestor:  ingestor,
		directory: directory,
		notifier:  notifier,
		config:    config,
	}
}

// Start begins the periodic loop. Returns an error if already running.
func (s *IngestScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("ingest scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.stopOnce = &sync.Once{}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Ingest scheduler started",
		"interval", s.config.Interval,
		"concurrency", s.config.Concurrency)

	return nil
}

// Stop signals the loop and waits for the current round to finish. It is
// safe to call concurrently; every caller waits for the same loop.
func (s *IngestScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh, once := s.stopCh, s.doneCh, s.stopOnce
	s.mu.Unlock()

	once.Do(func() { close(stopCh) })

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Ingest scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Ingest scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	if s.doneCh == doneCh {
		s.running = false
	}
	s.mu.Unlock()

	return nil
}

func (s *IngestScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *IngestScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Ingest immediately on startup
	s.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce ingests every project, at most Concurrency at a time, and returns
// the reports of the projects that ran.
func (s *IngestScheduler) RunOnce(ctx context.Context) []IngestReport {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list projects", plog.FieldError, err)
		return nil
	}

	reports := make([]*IngestReport, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, p := range projects {
		g.Go(func() error {
			if report, ok := s.IngestProject(gctx, p.ID); ok {
				reports[i] = &report
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]IngestReport, 0, len(projects))
	total := 0
	for _, r := range reports {
		if r != nil {
			out = append(out, *r)
			total += r.NewPayments()
		}
	}
	slog.InfoContext(ctx, "Ingestion round completed",
		"projects", len(out),
		plog.FieldCount, total)
	return out
}

// IngestProject runs one project. It reports false when the project is
// already being ingested.
func (s *IngestScheduler) IngestProject(ctx context.Context, projectID int64) (IngestReport, bool) {
	if _, busy := s.active.LoadOrStore(projectID, struct{}{}); busy {
		slog.InfoContext(ctx, "Project ingestion already in progress", plog.FieldProjectID, projectID)
		return IngestReport{}, false
	}
	defer s.active.Delete(projectID)

	// The refresh and the ingestion share one pacer.
	provider := s.ingestor.Paced()

	if s.config.RefreshIBANs && s.directory != nil {
		if _, err := s.directory.refresh(ctx, projectID, provider); err != nil {
			slog.WarnContext(ctx, "Failed to refresh IBANs",
				plog.FieldProjectID, projectID, plog.FieldError, err)
		}
	}

	report := s.ingestor.ingest(ctx, projectID, provider)

	if s.notifier != nil && report.NewPayments() > 0 {
		if err := s.notifier.PaymentsIngested(ctx, report); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ingestion event",
				plog.FieldProjectID, projectID, plog.FieldRunID, report.RunID, plog.FieldError, err)
		}
	}
	return report, true
}
