// audit/service.go
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
)

// Service is the decision-trail sink and query surface. Record acknowledges
// acceptance into the pipeline, not completed persistence; a Record error
// means the pipeline could not accept the entry and the caller must deny.
type Service interface {
	Record(ctx context.Context, record DecisionRecord) error
	Query(ctx context.Context, filter Filter) ([]DecisionRecord, error)
	PrincipalTrail(ctx context.Context, principalID string, limit int) ([]DecisionRecord, error)
	GenerateReport(ctx context.Context, spec ReportSpec) (*Report, error)
	Close() error
}

// Options tune the asynchronous sink.
type Options struct {
	QueueSize      int
	EnqueueTimeout time.Duration
	Workers        int
}

type service struct {
	repo    Repository
	queue   chan DecisionRecord
	timeout time.Duration
	group   *errgroup.Group
	closed  chan struct{}
	once    sync.Once
}

func NewService(repo Repository, opts Options) Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 2 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}

	s := &service{
		repo:    repo,
		queue:   make(chan DecisionRecord, opts.QueueSize),
		timeout: opts.EnqueueTimeout,
		group:   &errgroup.Group{},
		closed:  make(chan struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		s.group.Go(s.drain)
	}
	return s
}

// Record enqueues the record for asynchronous persistence. It blocks up to
// the enqueue timeout when the queue is saturated and errors rather than
// dropping the entry.
func (s *service) Record(ctx context.Context, record DecisionRecord) error {
	select {
	case <-s.closed:
		return aegis_errors.ErrAuditUnavailable
	default:
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.queue <- record:
		return nil
	case <-s.closed:
		return aegis_errors.ErrAuditUnavailable
	case <-ctx.Done():
		return aegis_errors.ErrAuditUnavailable
	case <-timer.C:
		logger.Error("Audit queue saturated past enqueue timeout",
			zap.Int("queueSize", cap(s.queue)),
			zap.Duration("timeout", s.timeout))
		return aegis_errors.ErrAuditUnavailable
	}
}

func (s *service) drain() error {
	for record := range s.queue {
		// Persistence runs detached from any request context.
		if err := s.repo.Store(context.Background(), record); err != nil {
			logger.Error("Failed to persist decision record",
				zap.Error(err),
				zap.String("recordID", record.ID),
				zap.String("principalID", record.PrincipalID))
		}
	}
	return nil
}

func (s *service) Query(ctx context.Context, filter Filter) ([]DecisionRecord, error) {
	return s.repo.Query(ctx, filter)
}

func (s *service) PrincipalTrail(ctx context.Context, principalID string, limit int) ([]DecisionRecord, error) {
	return s.repo.Query(ctx, Filter{PrincipalID: principalID, Limit: limit})
}

// GenerateReport aggregates matching records into outcome counts bucketed by
// the requested dimension.
func (s *service) GenerateReport(ctx context.Context, spec ReportSpec) (*Report, error) {
	switch spec.ReportType {
	case "", ReportByPrincipal, ReportByResource, ReportByReason, ReportByOutcome:
	default:
		return nil, aegis_errors.ErrInvalidReportSpec
	}
	if !spec.To.After(spec.From) {
		return nil, aegis_errors.ErrInvalidReportSpec
	}

	records, err := s.repo.Query(ctx, Filter{From: spec.From, To: spec.To, PrincipalID: spec.PrincipalID})
	if err != nil {
		return nil, err
	}

	report := &Report{
		ReportType:  spec.ReportType,
		From:        spec.From,
		To:          spec.To,
		Buckets:     map[string]int{},
		GeneratedAt: time.Now(),
	}
	for _, record := range records {
		if record.Outcome != pdp_model.OutcomeAllow && !spec.IncludeFailedAttempts {
			continue
		}
		report.Total++
		if record.Outcome == pdp_model.OutcomeAllow {
			report.Allowed++
		} else {
			report.Denied++
		}
		switch spec.ReportType {
		case ReportByPrincipal:
			report.Buckets[record.PrincipalID]++
		case ReportByResource:
			report.Buckets[record.ResourceID]++
		case ReportByReason:
			report.Buckets[record.Reason]++
		case ReportByOutcome:
			report.Buckets[record.Outcome]++
		}
	}
	return report, nil
}

// Close stops accepting records and waits for queued entries to flush.
func (s *service) Close() error {
	s.once.Do(func() {
		close(s.closed)
		close(s.queue)
	})
	return s.group.Wait()
}
