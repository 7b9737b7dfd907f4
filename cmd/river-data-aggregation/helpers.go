package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/i474232898/river-data-aggregation/internal/config"
	"github.com/i474232898/river-data-aggregation/internal/httpcache"
	"github.com/i474232898/river-data-aggregation/internal/hydro"
	"github.com/i474232898/river-data-aggregation/internal/hydro/providers"
	"github.com/i474232898/river-data-aggregation/internal/logging"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// runtime is what every subcommand shares: the loaded config with flag
// overrides applied, the live settings and the logger.
type runtime struct {
	cfg      *config.AppConfig
	settings *hydro.SettingsStore
	logger   *slog.Logger
}

func setup(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("rate-limit") {
		cfg.RateLimit, _ = flags.GetFloat64("rate-limit")
	}
	if flags.Changed("retries") {
		cfg.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("backoff") {
		secs, _ := flags.GetFloat64("backoff")
		cfg.Backoff = time.Duration(secs * float64(time.Second))
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if cfg.Retries < 1 {
		return nil, fmt.Errorf("--retries must be at least 1")
	}
	if cfg.RateLimit < 0 || cfg.Backoff < 0 {
		return nil, fmt.Errorf("--rate-limit and --backoff must not be negative")
	}

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:      cfg,
		settings: hydro.NewSettingsStore(cfg.Settings()),
		logger:   logger,
	}, nil
}

// deps builds the shared HTTP stack. Responses are cached on disk unless
// caching is disabled by flag or config.
func (rt *runtime) deps(noCache bool) (providers.Deps, error) {
	client := &http.Client{Timeout: rt.cfg.HTTPTimeout}
	if !noCache && !rt.cfg.NoCache {
		tr, err := httpcache.New(rt.cfg.CacheDir, rt.cfg.CacheTTL, nil, rt.logger)
		if err != nil {
			return providers.Deps{}, err
		}
		client.Transport = tr
	}
	return providers.Deps{
		Client:    client,
		Limiters:  providers.NewLimiters(rt.settings),
		Retry:     providers.NewRetryPolicy(rt.settings, rt.logger),
		Logger:    rt.logger,
		UserAgent: rt.cfg.UserAgent,
	}, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty means unset.
func parseDate(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q; use YYYY-MM-DD or RFC3339", flag, s)
}

func printSummary(cmd *cobra.Command, res *hydro.Results) {
	out := cmd.OutOrStdout()
	var ok, empty, failed int
	for _, site := range res.Sites {
		r, found := res.BySite[site]
		if !found {
			warningColor.Fprintf(out, "- %s skipped\n", site)
			continue
		}
		switch r.Status {
		case hydro.StatusOK:
			ok++
			successColor.Fprintf(out, "✓ %s: %d records\n", site, len(r.Table.Records))
		case hydro.StatusNoData:
			empty++
			warningColor.Fprintf(out, "⚠ %s: no data\n", site)
		case hydro.StatusFailed:
			failed++
			errorColor.Fprintf(out, "✗ %s: %v\n", site, r.Err)
		}
	}
	infoColor.Fprintf(out, "run %s: %d ok, %d without data, %d failed\n", res.RunID, ok, empty, failed)
}
