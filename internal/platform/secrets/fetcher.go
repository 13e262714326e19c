// Package secrets resolves secret:// references against Google Secret
// Manager. The storefront keeps its Stripe API key, webhook secret and guest
// signing key there; resolved values are cached for the process lifetime and
// a local fallback file covers development without cloud credentials.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	latestVersion       = "latest"
	meterScope          = "github.com/shoplane/api/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type versionClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references, caching values and falling back to
// a local file when Secret Manager cannot be reached.
type Fetcher struct {
	client     versionClient
	ownsClient bool
	logger     *zap.Logger

	env            string
	defaultProject string
	projects       map[string]string
	versionPins    map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	duration    metric.Float64Histogram
	durationOK  bool
	cacheHits   metric.Int64Counter
	cacheHitsOK bool
}

type fetcherConfig struct {
	logger         *zap.Logger
	env            string
	defaultProject string
	projects       map[string]string
	fallbackPath   string
	meter          metric.Meter
	client         versionClient
	clientOpts     []option.ClientOption
	versionPins    map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithEnvironment selects the environment key used to pick a project ID.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) { cfg.env = strings.ToLower(strings.TrimSpace(env)) }
}

// WithDefaultProject sets the project used when no environment mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.defaultProject = strings.TrimSpace(projectID) }
}

// WithProjectMap supplies per-environment Secret Manager project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) { cfg.projects = cloneMap(m) }
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured client, primarily for tests.
func WithSecretManagerClient(client versionClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards Cloud client options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithVersionPins sets version overrides keyed by canonical secret reference.
// An env-scoped pin ("prod:secret://stripe_api_key") wins over a plain one.
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) { cfg.versionPins = cloneMap(pins) }
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal:
// the fetcher then serves exclusively from the fallback file, which is the
// normal mode for local development.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))),
		fallbackPath: defaultFallbackPath,
		projects:     map[string]string{},
		versionPins:  map[string]string{},
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterScope)
	}

	duration, durationErr := meter.Float64Histogram(
		"secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent resolving a secret reference"),
	)
	if durationErr != nil {
		cfg.logger.Warn("secrets: duration metric unavailable", zap.Error(durationErr))
	}
	cacheHits, cacheErr := meter.Int64Counter(
		"secrets.resolve.cache_hits",
		metric.WithDescription("Secret resolutions served from the in-process cache"),
	)
	if cacheErr != nil {
		cfg.logger.Warn("secrets: cache hit metric unavailable", zap.Error(cacheErr))
	}

	f := &Fetcher{
		logger:         cfg.logger,
		env:            cfg.env,
		defaultProject: cfg.defaultProject,
		projects:       cloneMap(cfg.projects),
		versionPins:    cloneMap(cfg.versionPins),
		fallbackPath:   cfg.fallbackPath,
		cache:          make(map[string]string),
		duration:       duration,
		durationOK:     durationErr == nil,
		cacheHits:      cacheHits,
		cacheHitsOK:    cacheErr == nil,
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the underlying client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind a secret:// reference. Access failures
// that look environmental (missing permissions, transient outage) fall back
// to the local file; a genuinely missing secret stays an error.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	start := time.Now()

	ref, err := parseSecretRef(raw)
	if err != nil {
		return "", err
	}

	version := f.pinnedVersion(ref)
	key := versionedKey(ref.Canonical, version)

	if value, ok := f.cachedValue(key); ok {
		f.countCacheHit(ctx, ref)
		f.recordDuration(ctx, start, "cache")
		return value, nil
	}

	project := f.resolveProject(ref)
	if project != "" && f.client != nil {
		value, accessErr := f.accessVersion(ctx, project, ref.Name, version)
		if accessErr == nil {
			f.storeCached(key, value)
			f.recordDuration(ctx, start, "remote")
			return value, nil
		}
		if !shouldFallback(accessErr) {
			f.recordDuration(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", ref.Canonical, accessErr)
		}
		f.logger.Debug("secrets: falling back to local file",
			zap.String("ref", redactRef(ref.Canonical)), zap.Error(accessErr))
	}

	value, ok := f.fallbackValue(ref, version)
	if !ok {
		f.recordDuration(ctx, start, "error")
		return "", fmt.Errorf("secrets: fallback value not found for %s", ref.Canonical)
	}
	f.storeCached(key, value)
	f.recordDuration(ctx, start, "fallback")
	return value, nil
}

func (f *Fetcher) cachedValue(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[key]
	return value, ok
}

func (f *Fetcher) storeCached(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) accessVersion(ctx context.Context, project, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resource)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) resolveProject(ref secretRef) string {
	if ref.Project != "" {
		return ref.Project
	}
	if id := strings.TrimSpace(f.projects[f.env]); id != "" {
		return id
	}
	return strings.TrimSpace(f.defaultProject)
}

func (f *Fetcher) pinnedVersion(ref secretRef) string {
	if ref.Version != "" {
		return ref.Version
	}
	if pin := strings.TrimSpace(f.versionPins[envScopedKey(f.env, ref.Canonical)]); pin != "" {
		return pin
	}
	if pin := strings.TrimSpace(f.versionPins[ref.Canonical]); pin != "" {
		return pin
	}
	return latestVersion
}

func (f *Fetcher) fallbackValue(ref secretRef, version string) (string, bool) {
	f.loadFallbackFile()
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback file unreadable", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallback[versionedKey(ref.Canonical, version)]; ok {
		return value, true
	}
	value, ok := f.fallback[ref.Canonical]
	return value, ok
}

// loadFallbackFile reads KEY=VALUE lines once. Keys are secret references;
// the legacy sm:// prefix is accepted and normalised.
func (f *Fetcher) loadFallbackFile() {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}

		path := strings.TrimSpace(f.fallbackPath)
		if path == "" {
			return
		}
		file, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			name, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			name = normaliseFallbackKey(name)
			value = strings.TrimSpace(value)
			if name == "" {
				continue
			}
			ref, err := parseSecretRef(name)
			if err != nil {
				f.fallback[name] = value
				continue
			}
			version := ref.Version
			if version == "" {
				version = latestVersion
			}
			f.fallback[ref.Canonical] = value
			f.fallback[versionedKey(ref.Canonical, version)] = value
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", path, err)
		}
	})
}

func (f *Fetcher) recordDuration(ctx context.Context, start time.Time, source string) {
	if !f.durationOK {
		return
	}
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	f.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) countCacheHit(ctx context.Context, ref secretRef) {
	if !f.cacheHitsOK {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", redactRef(ref.Canonical))))
}

type secretRef struct {
	Canonical string
	Name      string
	Version   string
	Project   string
}

func parseSecretRef(raw string) (secretRef, error) {
	if strings.TrimSpace(raw) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()
	return secretRef{
		Canonical: canonical.String(),
		Name:      name,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func versionedKey(canonical, version string) string {
	return canonical + "#" + version
}

func envScopedKey(env, canonical string) string {
	if strings.TrimSpace(env) == "" {
		return canonical
	}
	return env + ":" + canonical
}

func cloneMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

// redactRef keeps secret names out of metric labels and debug logs.
func redactRef(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}

func shouldFallback(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

func normaliseFallbackKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}
