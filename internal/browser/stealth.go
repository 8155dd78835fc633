package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/config"
)

// preparePage applies anti-detection measures and session settings to a
// freshly created page. Must run before any navigation: the stealth
// patches modify JavaScript properties that anti-bot systems read at load
// time (navigator.webdriver, plugins, WebGL fingerprint).
func preparePage(page *rod.Page, cfg *config.Config) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("failed to inject stealth script: %w", err)
	}

	if cfg.UserAgent != "" {
		if err := SetUserAgent(page, cfg.UserAgent); err != nil {
			log.Warn().Err(err).Msg("Failed to override page user agent")
		}
	}

	if err := SetViewport(page, 1920, 1080); err != nil {
		log.Warn().Err(err).Msg("Failed to set page viewport")
	}

	return nil
}

// SetUserAgent sets a custom user agent on the page.
func SetUserAgent(page *rod.Page, userAgent string) error {
	return proto.NetworkSetUserAgentOverride{
		UserAgent: userAgent,
	}.Call(page)
}

// SetViewport sets the page viewport size.
func SetViewport(page *rod.Page, width, height int) error {
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
}

// SetCookies sets cookies on the page.
func SetCookies(page *rod.Page, cookies []*proto.NetworkCookieParam) error {
	return page.SetCookies(cookies)
}

// GetCookies retrieves all cookies from the page.
func GetCookies(page *rod.Page) ([]*proto.NetworkCookie, error) {
	return page.Cookies(nil)
}
