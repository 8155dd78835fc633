package main

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/config"
	"github.com/solvarr/turnstiled/internal/tui"
)

// runTUI starts the interactive solve UI.
func runTUI(cfg *config.Config) {
	// Console logging would corrupt the alternate screen; keep errors only.
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	pool, sel, slv, err := buildSolver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize solver")
	}
	defer func() {
		_ = sel.Close()
		_ = pool.Close()
	}()

	if err := tui.Run(slv.Solve, cfg.SolveTimeout+cfg.PoolAcquireTimeout); err != nil {
		log.Fatal().Err(err).Msg("TUI failed")
	}
}
