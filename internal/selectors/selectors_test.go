package selectors

import (
	"testing"
)

func TestGetSelectors(t *testing.T) {
	sel := Get()

	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.Widget) == 0 {
		t.Error("Expected widget selectors")
	}
	if len(sel.ResponseInputs) == 0 {
		t.Error("Expected response input selectors")
	}
	if sel.FramePattern == "" {
		t.Error("Expected frame pattern")
	}
	if len(sel.FailureTexts) == 0 {
		t.Error("Expected failure text patterns")
	}
}

func TestGetSelectorsSingleton(t *testing.T) {
	sel1 := Get()
	sel2 := Get()

	if sel1 != sel2 {
		t.Error("Expected Get() to return the same instance")
	}
}

func TestDefaultSelectors(t *testing.T) {
	sel := defaultSelectors()

	if sel.Widget[0] != ".cf-turnstile" {
		t.Errorf("Expected primary widget selector .cf-turnstile, got %s", sel.Widget[0])
	}
	if sel.ResponseInputs[0] != "input[name='cf-turnstile-response']" {
		t.Errorf("Unexpected primary response input selector: %s", sel.ResponseInputs[0])
	}
	if sel.FramePattern != "challenges.cloudflare.com" {
		t.Errorf("Unexpected frame pattern: %s", sel.FramePattern)
	}
}

func TestSelectorsContainExpectedPatterns(t *testing.T) {
	sel := Get()

	contains := func(list []string, want string) bool {
		for _, p := range list {
			if p == want {
				return true
			}
		}
		return false
	}

	if !contains(sel.Widget, ".cf-turnstile") {
		t.Error("Expected .cf-turnstile in widget selectors")
	}
	if !contains(sel.ResponseInputs, "input[name='cf-turnstile-response']") {
		t.Error("Expected cf-turnstile-response input in response selectors")
	}
	if !contains(sel.FailureTexts, "invalid sitekey") {
		t.Error("Expected 'invalid sitekey' in failure texts")
	}
}
