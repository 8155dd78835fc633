package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/config"
	"github.com/solvarr/turnstiled/internal/types"
)

// runSolve performs a single synchronous solve and prints the result as JSON
// on stdout. Intended for scripting and for verifying a deployment.
func runSolve(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	url := fs.String("url", "", "target page URL (required)")
	sitekey := fs.String("sitekey", "", "widget sitekey (required)")
	action := fs.String("action", "", "widget action parameter")
	cdata := fs.String("cdata", "", "widget cdata parameter")
	invisible := fs.Bool("invisible", false, "widget runs in invisible mode")
	_ = fs.Parse(args)

	req := &types.SolveRequest{
		URL:       *url,
		SiteKey:   *sitekey,
		Action:    *action,
		CData:     *cdata,
		Invisible: *invisible,
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
		fs.Usage()
		os.Exit(2)
	}

	pool, sel, slv, err := buildSolver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize solver")
	}
	defer func() {
		_ = sel.Close()
		_ = pool.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SolveTimeout+cfg.PoolAcquireTimeout)
	defer cancel()

	result, err := slv.Solve(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "solve failed: %v\n", err)
		os.Exit(1)
	}

	out := struct {
		ElapsedTime float64 `json:"elapsed_time"`
		Value       string  `json:"value"`
	}{
		ElapsedTime: result.ElapsedSeconds(),
		Value:       result.Token,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error().Err(err).Msg("Failed to encode result")
		os.Exit(1)
	}
}
