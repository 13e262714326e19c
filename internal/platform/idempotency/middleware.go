package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shoplane/api/internal/platform/auth"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

// Logger abstracts the logging dependency used inside the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

type clockFunc func() time.Time

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      clockFunc
	logger     Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed entries are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods restricts the HTTP methods guarded by the middleware.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if len(methods) == 0 {
			return
		}
		cfg.methods = make(map[string]struct{}, len(methods))
		for _, method := range methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if method != "" {
				cfg.methods[method] = struct{}{}
			}
		}
	}
}

// WithLogger injects a logger for persistence errors.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock clockFunc) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

func mutatingMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:   {},
		http.MethodPut:    {},
		http.MethodPatch:  {},
		http.MethodDelete: {},
	}
}

// Middleware enforces idempotency for mutating requests: the key is claimed
// before the handler runs, the handler's response is captured and stored, and
// a retry with the same key and payload gets that stored response replayed.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods:    mutatingMethods(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}
	if len(cfg.methods) == 0 {
		cfg.methods = mutatingMethods()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.methods[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				respondError(w, http.StatusBadRequest, "idempotency_key_required", "missing idempotency key header")
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "idempotency_read_body_failed", "unable to read request body")
				return
			}

			requester := requesterID(r.Context())
			fingerprint := fingerprintRequest(r, body, requester)
			scoped := scopedKey(key, requester)
			now := cfg.clock().UTC()

			claim, err := store.Begin(r.Context(), scoped, fingerprint, now, cfg.ttl)
			if err != nil {
				handleStoreError(w, cfg.logger, err)
				return
			}

			switch claim.State {
			case ClaimReplay:
				writeStoredResponse(w, claim.Entry)
				return
			case ClaimInFlight:
				respondError(w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
				return
			case ClaimFresh:
				// Fall through to the handler.
			default:
				respondError(w, http.StatusInternalServerError, "idempotency_unknown_state", "unexpected idempotency state")
				return
			}

			capture := newCapturedResponse(w)
			next.ServeHTTP(capture, r)

			response := Response{
				Status:  capture.Status(),
				Headers: capture.HeaderSnapshot(),
				Body:    capture.Body(),
			}

			if err := store.Complete(r.Context(), scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
				if cfg.logger != nil {
					cfg.logger.Printf("idempotency: failed to persist response for key %s (requester %s): %v", key, requester, err)
				}
				if abandonErr := store.Abandon(r.Context(), scoped, fingerprint); abandonErr != nil && cfg.logger != nil {
					cfg.logger.Printf("idempotency: failed to release key %s after save failure: %v", key, abandonErr)
				}
				respondError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
				return
			}

			if err := capture.Flush(); err != nil && cfg.logger != nil {
				cfg.logger.Printf("idempotency: failed to flush response for key %s: %v", key, err)
			}
		})
	}
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// fingerprintRequest digests everything that makes a retry "the same
// request": method, target, requester and payload.
func fingerprintRequest(r *http.Request, body []byte, requester string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteString("|")
	b.WriteString(r.URL.Path)
	b.WriteString("|")
	b.WriteString(r.URL.RawQuery)
	b.WriteString("|")
	b.WriteString(r.Host)
	b.WriteString("|")
	b.WriteString(r.Header.Get("Content-Type"))
	b.WriteString("|")
	b.WriteString(requester)
	b.WriteString("|")
	if len(body) > 0 {
		b.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(b.String()))
}

// requesterID scopes keys per principal so two customers reusing the same
// key string never collide. Guest sessions count as principals too.
func requesterID(ctx context.Context) string {
	if owner, ok := auth.OwnerFromContext(ctx); ok {
		return owner.Key()
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func scopedKey(key, requester string) string {
	key = strings.TrimSpace(key)
	requester = strings.TrimSpace(requester)
	if requester == "" {
		requester = "anonymous"
	}
	if key == "" {
		return requester
	}
	return key + "|" + requester
}

func handleStoreError(w http.ResponseWriter, logger Logger, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		respondError(w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	}
	if logger != nil {
		logger.Printf("idempotency: store error: %v", err)
	}
	respondError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to process idempotency key")
}

func writeStoredResponse(w http.ResponseWriter, entry Entry) {
	for key := range w.Header() {
		w.Header().Del(key)
	}
	for key, values := range headersFromEntry(entry.Headers) {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")

	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(entry.Body) > 0 {
		_, _ = w.Write(entry.Body)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
	})
}

// capturedResponse buffers the handler's response so it can be stored before
// the client sees it. Nothing reaches the wire until Flush.
type capturedResponse struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newCapturedResponse(parent http.ResponseWriter) *capturedResponse {
	return &capturedResponse{parent: parent, header: make(http.Header)}
}

func (c *capturedResponse) Header() http.Header {
	return c.header
}

func (c *capturedResponse) WriteHeader(status int) {
	if status <= 0 {
		status = http.StatusOK
	}
	c.status = status
}

func (c *capturedResponse) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *capturedResponse) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *capturedResponse) Body() []byte {
	if c.body.Len() == 0 {
		return nil
	}
	return c.body.Bytes()
}

func (c *capturedResponse) HeaderSnapshot() http.Header {
	snapshot := make(http.Header, len(c.header))
	for key, values := range c.header {
		copied := make([]string, len(values))
		copy(copied, values)
		snapshot[key] = copied
	}
	return snapshot
}

// Flush writes the buffered response through to the real writer.
func (c *capturedResponse) Flush() error {
	dst := c.parent.Header()
	for key := range dst {
		dst.Del(key)
	}
	for key, values := range c.header {
		for _, value := range values {
			dst.Add(key, value)
		}
	}

	c.parent.WriteHeader(c.Status())
	if c.body.Len() == 0 {
		return nil
	}
	_, err := c.parent.Write(c.body.Bytes())
	return err
}
