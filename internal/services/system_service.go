package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shoplane/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Counters         repositories.CounterRepository
	Clock            func() time.Time
}

type systemService struct {
	healthRepo repositories.HealthRepository
	counters   repositories.CounterRepository
	clock      func() time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the system utility service providing health
// reports and counter access.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		counters:   deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (repositories.HealthReport, error) {
	if ctx == nil {
		return repositories.HealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return repositories.HealthReport{}, err
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.clock()
	}
	if report.Checks == nil {
		report.Checks = map[string]repositories.HealthCheckResult{}
	}
	if report.Status == "" {
		report.Status = repositories.HealthStatusOK
	}

	return report, nil
}

func (s *systemService) NextCounterValue(ctx context.Context, name string) (int64, error) {
	if ctx == nil {
		return 0, errors.New("system service: context is required")
	}
	if s.counters == nil {
		return 0, errors.New("system service: counter repository not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("system service: counter name is required")
	}
	return s.counters.Next(ctx, name)
}
