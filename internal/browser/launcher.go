package browser

import (
	"path/filepath"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/config"
)

// createLauncher creates a configured Rod launcher with optimal settings.
// These flags are tuned for anti-detection, matching techniques used by
// undetected_chromedriver but adapted for Rod/CDP.
//
// Key anti-detection strategies:
// 1. Use Xvfb virtual display (HEADLESS=false) - real headed browser
// 2. Disable automation-controlled blink features
// 3. Use consistent, realistic user agent
// 4. Proper WebGL rendering with SwiftShader
// 5. No flags that reveal automation
func createLauncher(cfg *config.Config, instanceID string) *launcher.Launcher {
	l := launcher.New()

	// Custom browser path if specified
	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}

	// ========================================
	// Display Mode Configuration
	// ========================================
	// HEADLESS=false (default in Docker): Uses Xvfb virtual display
	// This is the BEST option for anti-detection because:
	// - It's a real headed browser, not headless
	// - Full GPU/WebGL rendering pipeline
	// - No "HeadlessChrome" in any detection vectors
	//
	// HEADLESS=true: Uses --headless=new (Chrome 109+)
	// Only use this when Xvfb is not available
	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		// Rod enables headless by default. We must explicitly disable it
		// when using an Xvfb virtual display.
		l = l.Headless(false)
	}

	// Turnstile rejects the default headless UA string
	if cfg.UserAgent != "" {
		l = l.Set("user-agent", cfg.UserAgent)
	}

	// Persistent context keeps cookies and cf_clearance across instances
	if cfg.PersistentContext && cfg.UserDataDir != "" {
		l = l.UserDataDir(filepath.Join(cfg.UserDataDir, instanceID))
	}

	// ========================================
	// Container Security Flags
	// ========================================
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	// WebRTC can reveal the server's real public IP to target sites
	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	// ========================================
	// Anti-Detection Flags
	// ========================================

	// Disable AutomationControlled - prevents navigator.webdriver = true.
	// This is the most important anti-detection flag.
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Delete("enable-automation")

	l = l.Set("disable-features", "Translate,TranslateUI,BlinkGenPropertyTrees,WebRtcHideLocalIpsWithMdns")
	l = l.Set("enable-features", "NetworkService,NetworkServiceInProcess")

	// WebGL with SwiftShader - provides a realistic GPU fingerprint.
	// Without this, WebGL returns empty values which is a detection signal.
	l = l.Set("use-gl", "swiftshader").
		Set("use-angle", "swiftshader").
		Set("enable-unsafe-swiftshader").
		Set("enable-webgl").
		Set("enable-webgl2")

	// ========================================
	// Browser Behavior (Realistic)
	// ========================================
	l = l.Set("accept-lang", "en-US,en;q=0.9")

	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen")

	l = l.Set("window-size", "1920,1080")

	// ========================================
	// Performance & Stability
	// ========================================
	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("no-zygote").
		Set("safebrowsing-disable-auto-update")

	l = l.Set("js-flags", "--max-old-space-size=256").
		Set("disable-ipc-flooding-protection").
		Set("disable-renderer-backgrounding")

	l = l.Set("disable-gpu-sandbox")

	// Do NOT use --disable-gpu on ARM as it breaks WebGL/SwiftShader
	if isARM() {
		l = l.Set("disable-gpu-compositing")
		log.Debug().Msg("ARM detected: using software rendering with SwiftShader for WebGL")
	}

	return l
}

// isARM returns true if running on ARM architecture.
func isARM() bool {
	arch := runtime.GOARCH
	return arch == "arm" || arch == "arm64"
}
