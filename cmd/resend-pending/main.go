// Command resend-pending retries certificate delivery for every sponsorship
// whose certificate has not been sent yet.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"coralrefuge.org/internal/app"
	"coralrefuge.org/internal/config"
	"coralrefuge.org/internal/obs"
	"coralrefuge.org/internal/sponsorship"
)

type options struct {
	limit   int
	dryRun  bool
	timeout time.Duration
}

func main() {
	var opts options
	flag.IntVar(&opts.limit, "limit", 100, "maximum sponsorships to retry")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "list pending sponsorships without sending")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Error().Err(err).Msg("load config")
		os.Exit(2)
	}
	obs.SetLevel(cfg.LogLevel)
	os.Exit(run(cfg, opts))
}

// run returns the process exit code: 0 when every pending certificate was
// sent, 1 when some failed or the deadline cut the batch short, 2 when the
// batch could not start.
func run(cfg *config.Config, opts options) int {
	log := obs.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	svc, err := app.Build(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("build services")
		return 2
	}
	defer func() { _ = svc.Close() }()

	return resendPending(ctx, svc.Store, svc.Fulfiller, opts)
}

type resender interface {
	Resend(ctx context.Context, id string) (sponsorship.Sponsorship, error)
}

func resendPending(ctx context.Context, store sponsorship.Store, f resender, opts options) int {
	log := obs.Logger()

	pending, err := store.ListSponsorships(ctx, sponsorship.ListFilter{Status: sponsorship.StatusPending, Limit: opts.limit})
	if err != nil {
		log.Error().Err(err).Msg("list pending sponsorships")
		return 2
	}

	sent, failed := 0, 0
	for _, s := range pending {
		// Each delivery has its own timeout; the overall deadline is
		// enforced between sponsorships.
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("remaining", len(pending)-sent-failed).Msg("deadline reached")
			break
		}
		l := log.With().Str("sponsorship_id", s.ID).Str("certificate_id", s.CertificateID).Logger()
		if opts.dryRun {
			l.Info().Msg("pending")
			continue
		}
		if _, err := f.Resend(ctx, s.ID); err != nil {
			failed++
			l.Error().Err(err).Msg("resend failed")
			continue
		}
		sent++
		l.Info().Msg("certificate sent")
	}

	log.Info().Int("pending", len(pending)).Int("sent", sent).Int("failed", failed).Bool("dry_run", opts.dryRun).Msg("done")
	if failed > 0 || (!opts.dryRun && sent < len(pending)) {
		return 1
	}
	return 0
}
