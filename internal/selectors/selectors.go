// Package selectors provides the DOM patterns used to drive the Turnstile
// widget, with optional hot-reload from an external file.
package selectors

import (
	"embed"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors contains the DOM patterns the solver interacts with.
type Selectors struct {
	// Widget lists clickable widget container selectors, tried in order.
	Widget []string `yaml:"widget"`
	// ResponseInputs lists hidden inputs that carry the solved token.
	ResponseInputs []string `yaml:"response_inputs"`
	// FramePattern is a substring identifying the challenge iframe URL.
	FramePattern string `yaml:"frame_pattern"`
	// FailureTexts lists page text that marks the challenge as unrecoverable.
	FailureTexts []string `yaml:"failure_texts"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance loaded from the embedded
// selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("widget_selectors", len(s.Widget)).
		Int("response_inputs", len(s.ResponseInputs)).
		Msg("Selectors loaded")

	return &s, nil
}

// Validate checks that the Selectors can drive a solve at all.
func (s *Selectors) Validate() error {
	if len(s.Widget) == 0 && len(s.ResponseInputs) == 0 {
		return fmt.Errorf("selectors must define at least one widget or response_inputs pattern")
	}
	return nil
}

// defaultSelectors returns hardcoded fallback patterns.
func defaultSelectors() *Selectors {
	return &Selectors{
		Widget: []string{
			".cf-turnstile",
			"#cf-turnstile",
			"[data-sitekey]",
		},
		ResponseInputs: []string{
			"input[name='cf-turnstile-response']",
			"input[name='g-recaptcha-response']",
			".cf-turnstile-response",
		},
		FramePattern: "challenges.cloudflare.com",
		FailureTexts: []string{
			"invalid sitekey",
			"error 300030",
			"error 600010",
			"you have been blocked",
		},
	}
}
