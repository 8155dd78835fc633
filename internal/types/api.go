package types

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Request validation limits.
const (
	MaxURLLength          = 8192
	MaxSiteKeyLength      = 128
	MaxActionLength       = 256
	MaxCDataLength        = 1024
	MaxCookies            = 100
	MaxCookieNameLength   = 256
	MaxCookieValueLength  = 4096
	MaxCookieDomainLength = 256
	MaxCookiePathLength   = 2048
)

// SolveRequest describes a single Turnstile challenge to solve.
type SolveRequest struct {
	URL       string          `json:"url"`
	SiteKey   string          `json:"sitekey"`
	Action    string          `json:"action,omitempty"`
	CData     string          `json:"cdata,omitempty"`
	Invisible bool            `json:"invisible,omitempty"`
	Cookies   []RequestCookie `json:"cookies,omitempty"`
}

// Validate validates the request and returns an error if invalid.
// All failures wrap ErrInvalidRequest so callers can classify with errors.Is.
func (r *SolveRequest) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrURLRequired)
	}
	if len(r.URL) > MaxURLLength {
		return fmt.Errorf("%w: url exceeds maximum length of %d", ErrInvalidRequest, MaxURLLength)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %v", ErrInvalidRequest, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https, got: %s", ErrInvalidRequest, scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidRequest)
	}

	if r.SiteKey == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrSiteKeyRequired)
	}
	if len(r.SiteKey) > MaxSiteKeyLength {
		return fmt.Errorf("%w: sitekey exceeds maximum length of %d", ErrInvalidRequest, MaxSiteKeyLength)
	}
	if len(r.Action) > MaxActionLength {
		return fmt.Errorf("%w: action exceeds maximum length of %d", ErrInvalidRequest, MaxActionLength)
	}
	if len(r.CData) > MaxCDataLength {
		return fmt.Errorf("%w: cdata exceeds maximum length of %d", ErrInvalidRequest, MaxCDataLength)
	}

	if len(r.Cookies) > MaxCookies {
		return fmt.Errorf("%w: too many cookies (maximum %d)", ErrInvalidRequest, MaxCookies)
	}
	for i, cookie := range r.Cookies {
		if cookie.Name == "" {
			return fmt.Errorf("%w: cookie[%d]: name is required", ErrInvalidRequest, i)
		}
		if len(cookie.Name) > MaxCookieNameLength {
			return fmt.Errorf("%w: cookie[%d]: name exceeds maximum length of %d", ErrInvalidRequest, i, MaxCookieNameLength)
		}
		if len(cookie.Value) > MaxCookieValueLength {
			return fmt.Errorf("%w: cookie[%d]: value exceeds maximum length of %d", ErrInvalidRequest, i, MaxCookieValueLength)
		}
		if len(cookie.Domain) > MaxCookieDomainLength {
			return fmt.Errorf("%w: cookie[%d]: domain exceeds maximum length of %d", ErrInvalidRequest, i, MaxCookieDomainLength)
		}
		if len(cookie.Path) > MaxCookiePathLength {
			return fmt.Errorf("%w: cookie[%d]: path exceeds maximum length of %d", ErrInvalidRequest, i, MaxCookiePathLength)
		}
		if strings.Contains(cookie.Path, "..") {
			return fmt.Errorf("%w: cookie[%d]: path cannot contain '..'", ErrInvalidRequest, i)
		}
	}

	return nil
}

// RequestCookie represents a cookie to be set before navigation.
type RequestCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// SolveResult contains the outcome of a successful solve.
type SolveResult struct {
	Token   string        `json:"value"`
	Elapsed time.Duration `json:"-"`
}

// ElapsedSeconds returns the solve duration in seconds rounded to
// three decimal places, the precision reported by the API.
func (r *SolveResult) ElapsedSeconds() float64 {
	return math.Round(r.Elapsed.Seconds()*1000) / 1000
}

// Task status values. Transitions are monotone:
// pending -> running -> done | failed.
const (
	TaskPending = "pending"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

// Status values for API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
