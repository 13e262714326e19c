package pagination

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func listRequest(t *testing.T, query string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/v1/shops/shop-1/products"+query, nil)
}

func TestFromRequestDefaults(t *testing.T) {
	params, err := FromRequest(listRequest(t, ""), Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.Limit != DefaultLimit || params.Offset != 0 || params.Sort != "" {
		t.Fatalf("unexpected defaults %+v", params)
	}
}

func TestFromRequestLimitBounds(t *testing.T) {
	opts := Options{DefaultLimit: 25, MaxLimit: 40}

	cases := []struct {
		name    string
		query   string
		want    int
		wantErr error
	}{
		{name: "explicit limit", query: "?limit=30", want: 30},
		{name: "clamped to max", query: "?limit=120", want: 40},
		{name: "handler default", query: "", want: 25},
		{name: "zero rejected", query: "?limit=0", wantErr: ErrInvalidLimit},
		{name: "non-numeric rejected", query: "?limit=abc", wantErr: ErrInvalidLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, err := FromRequest(listRequest(t, tc.query), opts)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromRequest returned error: %v", err)
			}
			if params.Limit != tc.want {
				t.Fatalf("expected limit %d, got %d", tc.want, params.Limit)
			}
		})
	}
}

func TestFromRequestOffset(t *testing.T) {
	params, err := FromRequest(listRequest(t, "?offset=40"), Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.Offset != 40 {
		t.Fatalf("expected offset 40, got %d", params.Offset)
	}

	for _, bad := range []string{"?offset=-5", "?offset=later"} {
		if _, err := FromRequest(listRequest(t, bad), Options{}); !errors.Is(err, ErrInvalidOffset) {
			t.Fatalf("query %s: expected ErrInvalidOffset, got %v", bad, err)
		}
	}
}

func TestFromRequestSort(t *testing.T) {
	opts := Options{
		AllowedSorts: []string{"relevance", "price_asc", "price_desc", "name", "newest"},
		DefaultSort:  "relevance",
	}

	params, err := FromRequest(listRequest(t, ""), opts)
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.Sort != "relevance" {
		t.Fatalf("expected default sort relevance, got %q", params.Sort)
	}

	params, err = FromRequest(listRequest(t, "?sort=PRICE_DESC"), opts)
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.Sort != "price_desc" {
		t.Fatalf("expected sort price_desc, got %q", params.Sort)
	}

	if _, err := FromRequest(listRequest(t, "?sort=popularity"), opts); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}
	if _, err := FromRequest(listRequest(t, "?sort=name"), Options{}); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort when sorting unsupported, got %v", err)
	}
}

func TestFromRequestNil(t *testing.T) {
	if _, err := FromRequest(nil, Options{}); err == nil {
		t.Fatal("expected error for nil request")
	}
}
