package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// HealthStatus summarises the state of a probed dependency.
type HealthStatus string

const (
	// HealthStatusOK indicates the dependency responded within its deadline.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates the dependency responded with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates the dependency timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

// HealthCheckResult is the outcome of a single dependency probe.
type HealthCheckResult struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates probe results for the readiness endpoint.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheckResult
	GeneratedAt time.Time
}

// HealthRepository reports the state of the API's downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (HealthReport, error)
}

// DependencyCheck is one probe: Firestore, Pub/Sub, Secret Manager.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

type probeHealthRepository struct {
	checks       []DependencyCheck
	probeTimeout time.Duration
	now          func() time.Time
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// DependencyHealthOption customises the probe-backed health repository.
type DependencyHealthOption func(*probeHealthRepository)

// WithDependencyTimeout sets the timeout for checks that omit their own.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(repo *probeHealthRepository) {
		if timeout > 0 {
			repo.probeTimeout = timeout
		}
	}
}

// WithDependencyClock injects a clock, primarily for tests.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(repo *probeHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

// NewDependencyHealthRepository builds a HealthRepository over the given probes.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health repository: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", check.Name)
		}
	}

	repo := &probeHealthRepository{
		checks:       append([]DependencyCheck(nil), checks...),
		probeTimeout: defaultProbeTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Collect runs every probe concurrently and folds the results into one
// report. A single erroring probe makes the whole report error; degraded
// probes degrade it.
func (r *probeHealthRepository) Collect(ctx context.Context) (HealthReport, error) {
	if ctx == nil {
		return HealthReport{}, errors.New("health repository: context is required")
	}

	var (
		group   errgroup.Group
		mu      sync.Mutex
		results = make(map[string]HealthCheckResult, len(r.checks))
	)
	for _, check := range r.checks {
		check := check
		group.Go(func() error {
			result := r.probe(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return HealthReport{
		Status:      overallStatus(results),
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

func (r *probeHealthRepository) probe(ctx context.Context, check DependencyCheck) HealthCheckResult {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.probeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(probeCtx)
	end := r.now()

	result := HealthCheckResult{
		Status:    HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil && probeCtx.Err() != nil:
		result.Status = HealthStatusError
		result.Detail = probeCtx.Err().Error()
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = HealthStatusError
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Status = HealthStatusError
		result.Detail = "cancelled"
	case err != nil:
		result.Status = HealthStatusDegraded
		result.Detail = err.Error()
	}
	return result
}

func overallStatus(results map[string]HealthCheckResult) HealthStatus {
	status := HealthStatusOK
	for _, result := range results {
		switch result.Status {
		case HealthStatusError:
			return HealthStatusError
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}
