package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadWith(t *testing.T, env map[string]string, extra ...Option) (Config, error) {
	t.Helper()
	opts := append([]Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}, extra...)
	return Load(context.Background(), opts...)
}

func mapResolver(secrets map[string]string) SecretResolver {
	return SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("secret not found: " + ref)
	})
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := loadWith(t, map[string]string{
		"API_FIREBASE_PROJECT_ID": "shoplane-dev",
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"server port", cfg.Server.Port, defaultPort},
		{"read timeout", cfg.Server.ReadTimeout, defaultReadTimeout},
		{"firestore project inherits firebase", cfg.Firestore.ProjectID, "shoplane-dev"},
		{"events project inherits firebase", cfg.Events.ProjectID, "shoplane-dev"},
		{"order events topic", cfg.Events.OrderEventsTopic, defaultOrderEventsTopic},
		{"currency", cfg.Payments.Currency, defaultCurrency},
		{"guest session ttl", cfg.Guest.SessionTTL, defaultGuestSessionTTL},
		{"cart ttl", cfg.Carts.TTL, defaultCartTTL},
		{"cart purge batch", cfg.Carts.PurgeBatchSize, defaultCartPurgeBatchSize},
		{"default rate limit", cfg.RateLimits.DefaultPerMinute, defaultRateLimitDefault},
		{"idempotency header", cfg.Idempotency.Header, defaultIdempotencyHeader},
		{"idempotency ttl", cfg.Idempotency.TTL, defaultIdempotencyTTL},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Errorf("%s: got %v, want %v", check.name, check.got, check.want)
		}
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_IDLE_TIMEOUT":            "2m",
		"API_FIREBASE_PROJECT_ID":            "shoplane-prod",
		"API_FIRESTORE_PROJECT_ID":           "shoplane-fire",
		"API_PAYMENTS_STRIPE_API_KEY":        "secret://stripe/api",
		"API_PAYMENTS_STRIPE_WEBHOOK_SECRET": "secret://stripe/webhook",
		"API_PAYMENTS_CURRENCY":              "EUR",
		"API_GUEST_SIGNING_KEY":              "secret://guest/signing",
		"API_GUEST_SESSION_TTL":              "168h",
		"API_EVENTS_PROJECT_ID":              "shoplane-events",
		"API_EVENTS_ORDER_TOPIC":             "orders-prod",
		"API_CART_TTL":                       "96h",
		"API_CART_PURGE_INTERVAL":            "30m",
		"API_CART_PURGE_BATCH":               "500",
		"API_RATELIMIT_DEFAULT_PER_MIN":      "150",
		"API_IDEMPOTENCY_HEADER":             "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL":   "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":      "500",
	}
	resolver := mapResolver(map[string]string{
		"secret://stripe/api":     "stripe-key",
		"secret://stripe/webhook": "stripe-webhook",
		"secret://guest/signing":  "guest-signing-key",
	})

	cfg, err := loadWith(t, env, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"server port", cfg.Server.Port, "9090"},
		{"idle timeout", cfg.Server.IdleTimeout, 2 * time.Minute},
		{"firestore project", cfg.Firestore.ProjectID, "shoplane-fire"},
		{"stripe api key resolved", cfg.Payments.StripeAPIKey, "stripe-key"},
		{"stripe webhook secret resolved", cfg.Payments.StripeWebhookSecret, "stripe-webhook"},
		{"currency lowered", cfg.Payments.Currency, "eur"},
		{"guest signing key resolved", cfg.Guest.SigningKey, "guest-signing-key"},
		{"guest session ttl", cfg.Guest.SessionTTL, 168 * time.Hour},
		{"events project", cfg.Events.ProjectID, "shoplane-events"},
		{"order events topic", cfg.Events.OrderEventsTopic, "orders-prod"},
		{"cart ttl", cfg.Carts.TTL, 96 * time.Hour},
		{"cart purge interval", cfg.Carts.PurgeInterval, 30 * time.Minute},
		{"cart purge batch", cfg.Carts.PurgeBatchSize, 500},
		{"rate limit default", cfg.RateLimits.DefaultPerMinute, 150},
		{"idempotency header", cfg.Idempotency.Header, "X-Idem-Key"},
		{"idempotency ttl", cfg.Idempotency.TTL, 48 * time.Hour},
		{"idempotency cleanup interval", cfg.Idempotency.CleanupInterval, 30 * time.Minute},
		{"idempotency cleanup batch", cfg.Idempotency.CleanupBatchSize, 500},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Errorf("%s: got %v, want %v", check.name, check.got, check.want)
		}
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"shoplane-dot\"\n# comment\nbroken-line\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "shoplane-dot" {
		t.Errorf("expected quoted export value from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := loadWith(t, map[string]string{})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	fields := validationErr.Fields()
	if len(fields) == 0 {
		t.Fatal("expected missing fields to be reported")
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	_, err := loadWith(t, map[string]string{
		"API_FIREBASE_PROJECT_ID":     "shoplane-dev",
		"API_PAYMENTS_STRIPE_API_KEY": "secret://missing",
	})
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T (%v)", err, err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected unresolved-resolver cause, got %v", secretErr.Err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	expected := map[string]string{
		"API_FIREBASE_PROJECT_ID":  "override-project",
		"API_SECRET_FALLBACK_FILE": ".dot.local",
		"API_SECRET_PROJECT_IDS":   "prod=project-prod",
		"API_SECRET_VERSION_PINS":  "secret://stripe/api=5",
	}
	for key, want := range expected {
		if got := values[key]; got != want {
			t.Errorf("%s: got %q, want %q", key, got, want)
		}
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := loadWith(t, map[string]string{
		"API_FIREBASE_PROJECT_ID": "shoplane-dev",
	}, WithRequiredSecrets("Guest.SigningKey", "Guest.SigningKey", " "))

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T (%v)", err, err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Guest.SigningKey" {
		t.Fatalf("unexpected missing secret names %v", names)
	}
	want := redactSecretName("Guest.SigningKey")
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] != want {
		t.Fatalf("unexpected redacted names %v", redacted)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if names := missing.Names(); len(names) != 1 || names[0] != "Guest.SigningKey" {
			t.Fatalf("unexpected missing secrets %v", names)
		}
	}()

	loadWith(t, map[string]string{
		"API_FIREBASE_PROJECT_ID": "shoplane-dev",
	}, WithRequiredSecrets("Guest.SigningKey"), WithPanicOnMissingSecrets())
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	resolver := mapResolver(map[string]string{
		"secret://guest/signing": "legacy-secret",
	})

	cfg, err := loadWith(t, map[string]string{
		"API_FIREBASE_PROJECT_ID": "shoplane-dev",
		"API_GUEST_SIGNING_KEY":   "sm://guest/signing",
	}, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Guest.SigningKey != "legacy-secret" {
		t.Fatalf("expected legacy scheme to resolve, got %s", cfg.Guest.SigningKey)
	}
}
