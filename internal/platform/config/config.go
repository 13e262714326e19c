// Package config loads marketplace runtime configuration from the process
// environment, an optional dotenv file, and Secret Manager references.
package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRateLimitDefault     = 120
	defaultRateLimitAuth        = 240
	defaultCurrency             = "usd"
	defaultOrderEventsTopic     = "order-events"
	defaultGuestSessionTTL      = 30 * 24 * time.Hour
	defaultCartTTL              = 7 * 24 * time.Hour
	defaultCartPurgeInterval    = time.Hour
	defaultCartPurgeBatchSize   = 200
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Payments    PaymentsConfig
	Guest       GuestConfig
	Events      EventsConfig
	Carts       CartConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PaymentsConfig collects payment provider credentials and the settlement currency.
type PaymentsConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	Currency            string
}

// GuestConfig controls anonymous shopping session tokens.
type GuestConfig struct {
	SigningKey string
	SessionTTL time.Duration
}

// EventsConfig names the Pub/Sub surface for order lifecycle events.
type EventsConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// CartConfig controls cart retention and the expiry sweep.
type CartConfig struct {
	TTL            time.Duration
	PurgeInterval  time.Duration
	PurgeBatchSize int
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
// Error output carries only hashed identifiers so it is safe to log.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

func (e *MissingSecretsError) Error() string {
	redacted := e.RedactedNames()
	if len(redacted) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// RedactedNames returns the hashed secret identifiers, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	return e.names(func(s missingSecret) string { return s.redacted })
}

// Names returns the underlying secret identifiers, sorted.
func (e *MissingSecretsError) Names() []string {
	return e.names(func(s missingSecret) string { return s.name })
}

func (e *MissingSecretsError) names(pick func(missingSecret) string) []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, pick(secret))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers should match the config field names recorded by the loader
// (e.g. "Payments.StripeAPIKey" or "Guest.SigningKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) { o.panicOnMissingSecrets = true }
}

func applyOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// env is the effective merged environment. Lookups through it already reflect
// the dotenv < OS env < explicit map precedence.
type env map[string]string

func (e env) str(key, fallback string) string {
	if value := e[key]; value != "" {
		return value
	}
	return fallback
}

func (e env) dur(key string, fallback time.Duration) time.Duration {
	if value := e[key]; value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (e env) num(key string, fallback int) int {
	if value := e[key]; value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return mergedEnv(applyOptions(opts))
}

func mergedEnv(options loaderOptions) (env, error) {
	values := make(env)

	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	for key, value := range dotenv {
		values[key] = value
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}

	for key, value := range options.envMap {
		values[key] = value
	}

	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := applyOptions(opts)

	values, err := mergedEnv(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         values.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  values.dur("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: values.dur("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  values.dur("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       values.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: values.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    values.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: values.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:        values.str("API_PAYMENTS_STRIPE_API_KEY", ""),
			StripeWebhookSecret: values.str("API_PAYMENTS_STRIPE_WEBHOOK_SECRET", ""),
			Currency:            strings.ToLower(values.str("API_PAYMENTS_CURRENCY", defaultCurrency)),
		},
		Guest: GuestConfig{
			SigningKey: values.str("API_GUEST_SIGNING_KEY", ""),
			SessionTTL: values.dur("API_GUEST_SESSION_TTL", defaultGuestSessionTTL),
		},
		Events: EventsConfig{
			ProjectID:        values.str("API_EVENTS_PROJECT_ID", ""),
			OrderEventsTopic: values.str("API_EVENTS_ORDER_TOPIC", defaultOrderEventsTopic),
		},
		Carts: CartConfig{
			TTL:            values.dur("API_CART_TTL", defaultCartTTL),
			PurgeInterval:  values.dur("API_CART_PURGE_INTERVAL", defaultCartPurgeInterval),
			PurgeBatchSize: values.num("API_CART_PURGE_BATCH", defaultCartPurgeBatchSize),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       values.num("API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			AuthenticatedPerMinute: values.num("API_RATELIMIT_AUTH_PER_MIN", defaultRateLimitAuth),
		},
		Idempotency: IdempotencyConfig{
			Header:           values.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              values.dur("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  values.dur("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: values.num("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore and event projects default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Payments.StripeWebhookSecret", &cfg.Payments.StripeWebhookSecret},
		{"Guest.SigningKey", &cfg.Guest.SigningKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecretRef(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := missingRequiredSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

// resolveSecretRef passes plain values through and resolves secret:// (or
// legacy sm://) references via the configured resolver.
func resolveSecretRef(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !hasSecretScheme(value) {
		return value, nil
	}
	ref := canonicalSecretRef(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func hasSecretScheme(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func canonicalSecretRef(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func validateConfig(cfg Config) error {
	var missing []string

	require := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	require(cfg.Payments.Currency != "", "Payments.Currency")
	require(cfg.Guest.SessionTTL > 0, "Guest.SessionTTL")
	require(cfg.Carts.TTL > 0, "Carts.TTL")
	require(cfg.Carts.PurgeInterval > 0, "Carts.PurgeInterval")
	require(cfg.Carts.PurgeBatchSize > 0, "Carts.PurgeBatchSize")
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func missingRequiredSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []missingSecret
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

// readDotEnv parses a dotenv file into a map. A missing file is not an error;
// local overrides are optional.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "export "); ok {
			line = strings.TrimSpace(rest)
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}
