package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		builtin     bool
		prune       bool
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&builtin, "builtin", false, "import the built-in offer table before any files")
	flag.BoolVar(&prune, "prune", false, "deactivate stored offers missing from the import")
	flag.BoolVar(&dryRun, "dry-run", false, "validate the files without touching the database")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: offer-import [flags] [offers.jsonl[.gz] ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if !builtin && flag.NArg() == 0 {
		slog.Error("nothing to import: pass offer files or --builtin")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), builtin, prune, dryRun); err != nil {
		slog.Error("offer import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("offer import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, builtin, prune, dryRun bool) error {
	var base []offer.Offer
	if builtin {
		base = offer.DefaultOffers()
	}

	offers, err := loadOffers(ctx, base, files)
	if err != nil {
		return err
	}

	// The catalog rejects duplicate codes and malformed rules.
	catalog, err := offer.NewCatalog(offers...)
	if err != nil {
		return errors.Wrap(err, "validate offers")
	}
	slog.Info("offers validated", slog.Int("count", catalog.Len()))

	if dryRun {
		for _, o := range catalog.Offers() {
			slog.Info("offer", slog.String("code", o.Code), slog.String("kind", string(o.Kind)))
		}
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewOfferRepository(pool)
	if err := repo.Upsert(ctx, catalog.Offers()); err != nil {
		return errors.Wrap(err, "write offers")
	}
	slog.Info("offers written", slog.Int("count", catalog.Len()))

	if prune {
		keep := make([]string, 0, catalog.Len())
		for _, o := range catalog.Offers() {
			keep = append(keep, o.Code)
		}
		n, err := repo.Deactivate(ctx, keep)
		if err != nil {
			return errors.Wrap(err, "prune offers")
		}
		slog.Info("stale offers deactivated", slog.Int64("count", n))
	}

	return nil
}

// loadOffers parses every file concurrently and appends the results to base
// in argument order.
func loadOffers(ctx context.Context, base []offer.Offer, files []string) ([]offer.Offer, error) {
	results := make([][]offer.Offer, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			offers, err := readOfferFile(ctx, path)
			if err != nil {
				return err
			}
			slog.Info("file parsed", slog.String("path", path), slog.Int("offers", len(offers)))
			results[i] = offers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := append([]offer.Offer(nil), base...)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
