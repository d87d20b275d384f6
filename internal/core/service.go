package core

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"costcore/internal/blob"
	"costcore/pkg/domain"
)

// Service exposes the transactional estimate operations: project and estimate
// lifecycle, trade and sub-item writes with synchronous rollups, templates,
// the category registry and imports. Every write runs through the backend
// router and recomputes derived totals inside the same transaction as the
// triggering mutation.
type Service struct {
	router  *Router
	docs    blob.Store
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	nowFn   func() time.Time
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder receiving one observation
// per completed operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer producing one span per operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithDocumentStore installs the blob store backing vendor quote uploads.
func WithDocumentStore(store blob.Store) Option {
	return func(s *Service) {
		s.docs = store
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewService constructs a service over the backend router.
func NewService(router *Router, opts ...Option) *Service {
	s := &Service{
		router:  router,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the backend router serving this service.
func (s *Service) Router() *Router { return s.router }

// instrument wraps an operation with tracing, metrics and failure logging.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := s.nowFn()
	ctx = withObservedBackend(ctx, s.router.Mode())
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	s.metrics.Observe(ctx, operation, err == nil, s.nowFn().Sub(start))
	span.End(err)
	if err != nil {
		s.logger.Warnf("%s: %v", operation, err)
	}
	return err
}

// logWarnings reports non-blocking rule violations from a committed transaction.
func (s *Service) logWarnings(res Result) {
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warnf("rule %s: %s", v.Rule, v.Message)
		}
	}
}

// CreateProject persists a new project together with its single estimate.
// The estimate is created with the current global markup default and zero
// contingency.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, error) {
	var created Project
	err := s.instrument(ctx, "create_project", func(ctx context.Context) error {
		if strings.TrimSpace(project.Name) == "" {
			return domain.ValidationError{Field: "name", Reason: "project name is required"}
		}
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		if project.Status == "" {
			project.Status = domain.StatusEstimating
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateProject(project)
			if err != nil {
				return err
			}
			_, err = tx.CreateEstimate(Estimate{
				ProjectID:            created.ID,
				DefaultMarkupPercent: domain.GlobalDefaultMarkupPercent(),
			})
			return err
		})
		s.logWarnings(res)
		return err
	})
	return created, err
}

// GetProject returns a project by id from the active backend.
func (s *Service) GetProject(ctx context.Context, id string) (Project, error) {
	var project Project
	err := s.instrument(ctx, "get_project", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			found, ok := view.FindProject(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityProject, ID: id}
			}
			project = found
			return nil
		})
	})
	return project, err
}

// ListProjects returns all projects from the active backend.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := s.instrument(ctx, "list_projects", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			projects = view.ListProjects()
			return nil
		})
	})
	return projects, err
}

// UpdateProject mutates a project. Status transitions are validated by the
// rules engine at commit.
func (s *Service) UpdateProject(ctx context.Context, id string, mutator func(*Project) error) (Project, error) {
	var updated Project
	err := s.instrument(ctx, "update_project", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateProject(id, mutator)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return updated, err
}

// DeleteProject removes a project, cascading to its estimate, trades and
// sub-items.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	return s.instrument(ctx, "delete_project", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteProject(id)
		})
		s.logWarnings(res)
		return err
	})
}

// ReopenProject is the explicit reversal of the one-directional status flow:
// it moves a project back to estimating from any state.
func (s *Service) ReopenProject(ctx context.Context, id string) (Project, error) {
	return s.UpdateProject(ctx, id, func(p *Project) error {
		p.Status = domain.StatusEstimating
		return nil
	})
}

// GetEstimate returns an estimate by id from the active backend.
func (s *Service) GetEstimate(ctx context.Context, id string) (Estimate, error) {
	var estimate Estimate
	err := s.instrument(ctx, "get_estimate", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			found, ok := view.FindEstimate(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEstimate, ID: id}
			}
			estimate = found
			return nil
		})
	})
	return estimate, err
}

// EstimateForProject returns the project's estimate, creating a fresh default
// one when the invariant "every project owns exactly one estimate" has been
// broken by historical data. The second return reports whether a repair write
// happened.
func (s *Service) EstimateForProject(ctx context.Context, projectID string) (Estimate, bool, error) {
	var (
		estimate Estimate
		repaired bool
	)
	err := s.instrument(ctx, "estimate_for_project", func(ctx context.Context) error {
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindProject(projectID); !ok {
				return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
			}
			if found, ok := tx.EstimateByProject(projectID); ok {
				estimate = found
				return nil
			}
			// The lookup is read-only, but the repair is a write and carries
			// the same auth contract as any other write.
			if err := s.requireWriteIdentity(ctx); err != nil {
				return err
			}
			created, err := tx.CreateEstimate(Estimate{
				ProjectID:            projectID,
				DefaultMarkupPercent: domain.GlobalDefaultMarkupPercent(),
			})
			if err != nil {
				return err
			}
			estimate = created
			repaired = true
			return nil
		})
		s.logWarnings(res)
		return err
	})
	if err != nil {
		return Estimate{}, false, err
	}
	if repaired {
		s.logger.Infof("repaired missing estimate for project %s", projectID)
	}
	return estimate, repaired, nil
}

// UpdateEstimateDefaults sets the estimate's default markup and contingency
// percentages and recomputes totals in the same transaction.
func (s *Service) UpdateEstimateDefaults(ctx context.Context, estimateID string, markupPercent, contingencyPercent decimal.Decimal) (Estimate, error) {
	var updated Estimate
	err := s.instrument(ctx, "update_estimate_defaults", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, err := tx.UpdateEstimate(estimateID, func(e *Estimate) error {
				e.DefaultMarkupPercent = markupPercent
				e.DefaultContingencyPercent = contingencyPercent
				return nil
			}); err != nil {
				return err
			}
			var err error
			updated, err = s.recalcEstimateTx(tx, estimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return updated, err
}
