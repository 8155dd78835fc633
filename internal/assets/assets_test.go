package assets

import (
	"strings"
	"testing"
)

func TestReadTemplate(t *testing.T) {
	content, err := ReadTemplate("index.html")
	if err != nil {
		t.Fatalf("ReadTemplate failed: %v", err)
	}
	if !strings.Contains(string(content), "/turnstile") {
		t.Error("Index template should document the /turnstile endpoint")
	}
}

func TestGetTemplate(t *testing.T) {
	tmpl, err := GetTemplate("index.html")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if tmpl == nil {
		t.Fatal("Expected non-nil template")
	}
}

func TestReadTemplateMissing(t *testing.T) {
	if _, err := ReadTemplate("no-such-template.html"); err == nil {
		t.Error("Expected error for missing template")
	}
}

func TestSanitizeVersion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "1.2.3", "1.2.3"},
		{"with suffix", "1.2.3-rc.1+build_5", "1.2.3-rc.1+build_5"},
		{"script injection", `<script>alert(1)</script>`, "scriptalert1script"},
		{"empty", "", "unknown"},
		{"only junk", "<>&\"'", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeVersion(tt.in); got != tt.want {
				t.Errorf("SanitizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeVersionTruncates(t *testing.T) {
	long := strings.Repeat("1", 200)
	if got := SanitizeVersion(long); len(got) != 100 {
		t.Errorf("Expected 100 chars, got %d", len(got))
	}
}

func TestRenderStatusPage(t *testing.T) {
	page, err := RenderStatusPage(StatusPageData{
		Version:       "1.2.3",
		GoVersion:     "go1.24.0",
		Uptime:        "5m30s",
		PoolInstances: 2,
		PoolLeases:    1,
		Tasks:         7,
	})
	if err != nil {
		t.Fatalf("RenderStatusPage failed: %v", err)
	}

	for _, want := range []string{"1.2.3", "go1.24.0", "5m30s", "Browser Instances"} {
		if !strings.Contains(page, want) {
			t.Errorf("Status page missing %q", want)
		}
	}
}

func TestRenderStatusPageEscapesVersion(t *testing.T) {
	page, err := RenderStatusPage(StatusPageData{
		Version: `"><script>alert(1)</script>`,
	})
	if err != nil {
		t.Fatalf("RenderStatusPage failed: %v", err)
	}
	if strings.Contains(page, "<script>alert") {
		t.Error("Version string was not sanitized")
	}
}
