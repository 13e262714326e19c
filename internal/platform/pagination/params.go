// Package pagination extracts limit/offset/sort query parameters for list
// endpoints and clamps them to handler-declared bounds.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the page size used when the client omits limit.
	DefaultLimit = 20
	// DefaultMaxLimit caps the supported limit to prevent unbounded queries.
	DefaultMaxLimit = 100
)

var (
	ErrInvalidLimit  = errors.New("pagination: invalid limit")
	ErrInvalidOffset = errors.New("pagination: invalid offset")
	ErrInvalidSort   = errors.New("pagination: invalid sort")
)

// Params bundles the offset pagination values extracted from a request.
type Params struct {
	Limit  int
	Offset int
	Sort   string
}

// Options control how FromRequest behaves for a given handler.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	AllowedSorts []string
	DefaultSort  string
}

// FromRequest parses limit, offset, and sort from the request query. Limits
// above the maximum clamp silently; malformed or negative values error.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	query := r.URL.Query()

	limit, err := opts.limit(query.Get("limit"))
	if err != nil {
		return Params{}, err
	}
	offset, err := parseOffset(query.Get("offset"))
	if err != nil {
		return Params{}, err
	}
	sort, err := opts.sort(query.Get("sort"))
	if err != nil {
		return Params{}, err
	}

	return Params{Limit: limit, Offset: offset, Sort: sort}, nil
}

func (o Options) bounds() (fallback, ceiling int) {
	ceiling = o.MaxLimit
	if ceiling <= 0 {
		ceiling = DefaultMaxLimit
	}
	fallback = o.DefaultLimit
	if fallback <= 0 {
		fallback = DefaultLimit
	}
	if fallback > ceiling {
		fallback = ceiling
	}
	return fallback, ceiling
}

func (o Options) limit(raw string) (int, error) {
	fallback, ceiling := o.bounds()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidLimit)
	case value <= 0:
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidLimit)
	case value > ceiling:
		return ceiling, nil
	}
	return value, nil
}

func (o Options) sort(raw string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return o.DefaultSort, nil
	}
	if len(o.AllowedSorts) == 0 {
		return "", fmt.Errorf("%w: sorting not supported", ErrInvalidSort)
	}
	for _, allowed := range o.AllowedSorts {
		if strings.EqualFold(raw, strings.TrimSpace(allowed)) {
			return raw, nil
		}
	}
	return "", fmt.Errorf("%w: sort %q is not allowed", ErrInvalidSort, raw)
}

func parseOffset(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidOffset)
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidOffset)
	}
	return value, nil
}
