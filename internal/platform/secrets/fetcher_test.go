package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubVersionClient struct {
	mu     sync.Mutex
	values map[string]string
	fail   map[string]error
	calls  map[string]int
}

func newStubVersionClient() *stubVersionClient {
	return &stubVersionClient{
		values: make(map[string]string),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (s *stubVersionClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := req.GetName()
	s.calls[name]++

	if err, ok := s.fail[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := s.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (s *stubVersionClient) Close() error { return nil }

func (s *stubVersionClient) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func writeFallbackFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newStubVersionClient()
	resource := "projects/shoplane-dev/secrets/stripe_api_key/versions/latest"
	client.values[resource] = "sk_test_123"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("shoplane-dev"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("Resolve call %d returned error: %v", i+1, err)
		}
		if got != "sk_test_123" {
			t.Fatalf("expected sk_test_123, got %s", got)
		}
	}

	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected one remote access, got %d", calls)
	}
}

func TestResolveFallsBackWhenAccessDenied(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://stripe_api_key=sk_local\n")

	client := newStubVersionClient()
	resource := "projects/shoplane-dev/secrets/stripe_api_key/versions/latest"
	client.fail[resource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("shoplane-dev"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("expected fallback value sk_local, got %s", got)
	}
}

func TestResolveUsesVersionPins(t *testing.T) {
	ctx := context.Background()

	client := newStubVersionClient()
	pinned := "projects/shoplane-dev/secrets/stripe_api_key/versions/5"
	client.values[pinned] = "sk_pinned_v5"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("shoplane-dev"),
		WithVersionPins(map[string]string{"secret://stripe_api_key": "5"}),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_pinned_v5" {
		t.Fatalf("expected sk_pinned_v5, got %s", got)
	}
	if calls := client.callCount(pinned); calls != 1 {
		t.Fatalf("expected access of the pinned version, got %d calls", calls)
	}
}

func TestResolveMissingSecretDoesNotUseFallback(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://stripe_api_key=sk_local\n")

	client := newStubVersionClient()
	resource := "projects/shoplane-dev/secrets/stripe_api_key/versions/latest"
	client.fail[resource] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("shoplane-dev"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(ctx, "secret://stripe_api_key"); err == nil {
		t.Fatal("expected error for a secret that does not exist")
	}
}

func TestNewFetcherWithoutCredentialsServesFallback(t *testing.T) {
	ctx := context.Background()

	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	fallbackPath := writeFallbackFile(t, "secret://guest_signing_key=hs256-dev-key\n")

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(ctx, "secret://guest_signing_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "hs256-dev-key" {
		t.Fatalf("expected hs256-dev-key, got %s", value)
	}
}

func TestParseSecretRefVariants(t *testing.T) {
	cases := []struct {
		raw     string
		name    string
		version string
		project string
		wantErr bool
	}{
		{raw: "secret://stripe_api_key", name: "stripe_api_key"},
		{raw: "secret://stripe_api_key?version=7", name: "stripe_api_key", version: "7"},
		{raw: "secret://stripe_api_key?project=shoplane-prod", name: "stripe_api_key", project: "shoplane-prod"},
		{raw: "sm://stripe_api_key", wantErr: true},
		{raw: "secret://", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range cases {
		ref, err := parseSecretRef(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parse %q returned error: %v", tc.raw, err)
		}
		if ref.Name != tc.name || ref.Version != tc.version || ref.Project != tc.project {
			t.Fatalf("parse %q = %+v", tc.raw, ref)
		}
	}
}
