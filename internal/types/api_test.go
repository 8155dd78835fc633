package types

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSolveRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     SolveRequest
		wantErr error
	}{
		{
			name: "valid minimal",
			req:  SolveRequest{URL: "https://example.com", SiteKey: "0x4AAAAAAA"},
		},
		{
			name: "valid with action and cdata",
			req: SolveRequest{
				URL:     "https://example.com/login",
				SiteKey: "0x4AAAAAAA",
				Action:  "login",
				CData:   "session-token",
			},
		},
		{
			name:    "missing url",
			req:     SolveRequest{SiteKey: "0x4AAAAAAA"},
			wantErr: ErrURLRequired,
		},
		{
			name:    "missing sitekey",
			req:     SolveRequest{URL: "https://example.com"},
			wantErr: ErrSiteKeyRequired,
		},
		{
			name:    "bad scheme",
			req:     SolveRequest{URL: "ftp://example.com", SiteKey: "key"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "javascript scheme",
			req:     SolveRequest{URL: "javascript:alert(1)", SiteKey: "key"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "url too long",
			req:     SolveRequest{URL: "https://example.com/" + strings.Repeat("a", MaxURLLength), SiteKey: "key"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "sitekey too long",
			req:     SolveRequest{URL: "https://example.com", SiteKey: strings.Repeat("k", MaxSiteKeyLength+1)},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "cookie without name",
			req: SolveRequest{
				URL:     "https://example.com",
				SiteKey: "key",
				Cookies: []RequestCookie{{Value: "v"}},
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "cookie path traversal",
			req: SolveRequest{
				URL:     "https://example.com",
				SiteKey: "key",
				Cookies: []RequestCookie{{Name: "n", Path: "/../etc"}},
			},
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want errors.Is %v", err, tt.wantErr)
			}
			// Every validation failure must classify as an invalid request.
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() = %v, does not wrap ErrInvalidRequest", err)
			}
		})
	}
}

func TestSolveResultElapsedSeconds(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    float64
	}{
		{1234 * time.Millisecond, 1.234},
		{1234567 * time.Microsecond, 1.235},
		{500 * time.Millisecond, 0.5},
		{0, 0},
	}

	for _, tt := range tests {
		r := SolveResult{Elapsed: tt.elapsed}
		if got := r.ElapsedSeconds(); got != tt.want {
			t.Errorf("ElapsedSeconds(%v) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}

func TestSolveErrorUnwrap(t *testing.T) {
	err := NewChallengeTimeoutError("https://example.com")
	if !errors.Is(err, ErrChallengeTimeout) {
		t.Error("timeout error does not unwrap to ErrChallengeTimeout")
	}

	crash := NewBrowserCrashedError("https://example.com", errors.New("websocket closed"))
	if !errors.Is(crash, ErrBrowserCrashed) {
		t.Error("crash error does not unwrap to ErrBrowserCrashed")
	}

	var se *SolveError
	if !errors.As(crash, &se) {
		t.Fatal("crash error does not unwrap to *SolveError")
	}
	if se.Kind != "crashed" {
		t.Errorf("Kind = %q, want %q", se.Kind, "crashed")
	}

	pe := NewPoolAcquireError("timed out", ErrPoolExhausted)
	if !errors.Is(pe, ErrPoolExhausted) {
		t.Error("pool error does not unwrap to ErrPoolExhausted")
	}
}
