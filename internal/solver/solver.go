// Package solver drives the Turnstile widget to a token. It leases a page
// slot from the browser pool, serves a widget shell in place of the target
// site, and interacts with the widget until a token appears.
package solver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/solvarr/turnstiled/internal/browser"
	"github.com/solvarr/turnstiled/internal/config"
	"github.com/solvarr/turnstiled/internal/humanize"
	"github.com/solvarr/turnstiled/internal/metrics"
	"github.com/solvarr/turnstiled/internal/security"
	"github.com/solvarr/turnstiled/internal/selectors"
	"github.com/solvarr/turnstiled/internal/types"
)

// Solver resolves Turnstile challenges against a browser pool.
type Solver struct {
	pool        *browser.Pool
	sel         *selectors.Manager
	timing      *humanize.Timing
	timeout     time.Duration
	maxAttempts int
}

// New creates a Solver backed by the given pool and selector manager.
func New(pool *browser.Pool, sel *selectors.Manager, cfg *config.Config) *Solver {
	return &Solver{
		pool:        pool,
		sel:         sel,
		timing:      humanize.NewTiming(),
		timeout:     cfg.SolveTimeout,
		maxAttempts: cfg.MaxSolveAttempts,
	}
}

// Solve leases a page slot and works the Turnstile widget for the requested
// sitekey until a token appears or the solve times out.
//
// The target site is never actually loaded: requests for the target URL are
// intercepted and answered with a minimal shell that renders the widget
// against the target origin, which is all the challenge needs to mint a
// token for that site.
func (s *Solver) Solve(ctx context.Context, req *types.SolveRequest) (*types.SolveResult, error) {
	// Reject bad input before it costs a page slot.
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	log.Info().
		Str("url", req.URL).
		Str("sitekey", req.SiteKey).
		Bool("invisible", req.Invisible).
		Msg("Starting solve")

	slot, err := s.pool.AcquireSlot(ctx)
	if err != nil {
		return nil, types.NewPoolAcquireError("failed to acquire page slot", err)
	}
	defer s.pool.ReleaseSlot(slot)
	types.NotifyLeased(ctx)

	solveCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page := slot.Page().Context(solveCtx)

	stopIntercept, err := s.serveWidgetShell(page, req)
	if err != nil {
		return nil, s.failWith(slot, req.URL, "failed to set up request interception", err)
	}
	defer stopIntercept()

	if len(req.Cookies) > 0 {
		if err := s.setCookies(page, req.Cookies, req.URL); err != nil {
			log.Warn().Err(err).Msg("Failed to set cookies")
		}
	}

	if err := page.Navigate(req.URL); err != nil {
		return nil, s.failWith(slot, req.URL, "navigation failed", err)
	}
	if err := page.WaitLoad(); err != nil {
		log.Warn().Err(err).Msg("WaitLoad failed, continuing anyway")
	}

	s.shrinkWidget(page)

	token, err := s.workWidget(solveCtx, page, slot, req)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.RecordSolve(types.StatusOK, elapsed)
	log.Info().
		Str("url", req.URL).
		Dur("elapsed", elapsed).
		Msg("Solve completed")

	return &types.SolveResult{
		Token:   token,
		Elapsed: elapsed,
	}, nil
}

// workWidget polls for a token, clicking the widget between polls. Invisible
// widgets solve on their own and are only polled.
func (s *Solver) workWidget(ctx context.Context, page *rod.Page, slot *browser.PageSlot, req *types.SolveRequest) (string, error) {
	sel := s.sel.Get()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			metrics.RecordSolveFailure("timeout")
			return "", types.NewChallengeTimeoutError(req.URL)
		default:
		}

		token, err := s.extractToken(page, sel)
		if err != nil {
			if !slot.Instance().Alive() {
				s.pool.Evict(slot.Instance())
				metrics.RecordSolveFailure("browser_crashed")
				return "", types.NewBrowserCrashedError(req.URL, err)
			}
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("Token poll failed")
		}
		if token != "" {
			log.Debug().Int("attempt", attempt+1).Msg("Token obtained")
			return token, nil
		}

		if reason := s.findFailureText(page, sel); reason != "" {
			metrics.RecordSolveFailure("challenge_failed")
			return "", types.NewSolveFailedError(req.URL, reason, nil)
		}

		if !req.Invisible {
			humanize.SleepWithContext(ctx, s.timing.PreActionDelay())
			s.clickWidget(page, sel)
			humanize.SleepWithContext(ctx, s.timing.PostActionDelay())
		}

		if !humanize.SleepWithContext(ctx, s.timing.RandomPollInterval()) {
			metrics.RecordSolveFailure("timeout")
			return "", types.NewChallengeTimeoutError(req.URL)
		}
	}

	metrics.RecordSolveFailure("timeout")
	return "", types.NewChallengeTimeoutError(req.URL)
}

// serveWidgetShell intercepts requests for the target URL and fulfills them
// with the widget shell. Everything else, most importantly the challenge
// scripts, passes through. Returns a stop function for the router.
func (s *Solver) serveWidgetShell(page *rod.Page, req *types.SolveRequest) (func(), error) {
	shell := buildWidgetHTML(req.SiteKey, req.Action, req.CData)
	target := req.URL

	router := page.HijackRequests()
	err := router.Add("*", proto.NetworkResourceTypeDocument, func(h *rod.Hijack) {
		if !sameTarget(h.Request.URL().String(), target) {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		h.Response.Payload().ResponseCode = http.StatusOK
		h.Response.SetHeader("Content-Type", "text/html; charset=utf-8")
		h.Response.SetBody(shell)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add hijack route: %w", err)
	}

	go router.Run()
	return func() { _ = router.Stop() }, nil
}

// sameTarget reports whether a requested URL addresses the solve target,
// ignoring trailing slash differences.
func sameTarget(requested, target string) bool {
	return strings.TrimSuffix(requested, "/") == strings.TrimSuffix(target, "/")
}

// extractToken reads the solved token from the page. It tries the turnstile
// JS API first, then the configured response inputs.
func (s *Solver) extractToken(page *rod.Page, sel *selectors.Selectors) (string, error) {
	js := fmt.Sprintf(`() => {
		if (window.turnstile && typeof window.turnstile.getResponse === 'function') {
			try {
				const t = window.turnstile.getResponse();
				if (t) return t;
			} catch (e) {}
		}
		const sels = %s;
		for (const sel of sels) {
			const el = document.querySelector(sel);
			if (el && el.value) return el.value;
		}
		return '';
	}`, gson.New(sel.ResponseInputs).JSON("", ""))

	obj, err := page.Eval(js)
	if err != nil {
		return "", err
	}
	return obj.Value.Str(), nil
}

// findFailureText scans the page for text marking the challenge as
// unrecoverable. Returns the matched pattern or empty.
func (s *Solver) findFailureText(page *rod.Page, sel *selectors.Selectors) string {
	if len(sel.FailureTexts) == 0 {
		return ""
	}
	html, err := page.HTML()
	if err != nil {
		return ""
	}
	htmlLower := strings.ToLower(html)
	for _, pattern := range sel.FailureTexts {
		if strings.Contains(htmlLower, pattern) {
			return pattern
		}
	}
	return ""
}

// clickWidget clicks the first present widget container. Click failures are
// expected while the widget is still rendering and only logged.
func (s *Solver) clickWidget(page *rod.Page, sel *selectors.Selectors) {
	for _, selector := range sel.Widget {
		has, el, err := page.Has(selector)
		if err != nil || !has {
			continue
		}
		clickErr := el.Click(proto.InputMouseButtonLeft, 1)
		_ = el.Release()
		if clickErr != nil {
			log.Debug().Err(clickErr).Str("selector", selector).Msg("Widget click failed")
			continue
		}
		log.Debug().Str("selector", selector).Msg("Clicked widget")
		return
	}
}

// shrinkWidget narrows the widget container so clicks land on the checkbox.
func (s *Solver) shrinkWidget(page *rod.Page) {
	_, err := page.Eval(`() => {
		const w = document.querySelector('.cf-turnstile');
		if (w) w.style.width = '70px';
	}`)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to shrink widget")
	}
}

// setCookies sets request cookies on the page before navigation. Cookie
// domains are sanitized against the target host.
func (s *Solver) setCookies(page *rod.Page, cookies []types.RequestCookie, targetURL string) error {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return err
	}
	domain := parsed.Hostname()

	cdpCookies := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		cookiePath := c.Path
		if cookiePath == "" {
			cookiePath = "/"
		}
		cdpCookies = append(cdpCookies, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   security.SanitizeCookieDomain(c.Domain, domain),
			Path:     cookiePath,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	log.Debug().
		Int("cookie_count", len(cdpCookies)).
		Str("domain", domain).
		Msg("Setting cookies")

	return browser.SetCookies(page, cdpCookies)
}

// failWith classifies an interaction failure: a dead browser process is
// evicted and reported as a crash, anything else as a plain solve failure.
func (s *Solver) failWith(slot *browser.PageSlot, url, reason string, err error) error {
	if !slot.Instance().Alive() {
		s.pool.Evict(slot.Instance())
		metrics.RecordSolveFailure("browser_crashed")
		return types.NewBrowserCrashedError(url, err)
	}
	metrics.RecordSolveFailure("interaction")
	return types.NewSolveFailedError(url, reason, err)
}
