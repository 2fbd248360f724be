// Command federationd runs one federation synchronization pass: download
// remote key batches while the execution budget lasts, then upload local
// submissions newer than the persisted watermark.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/cmd/common"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/config"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/federation"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/scheduler"
	statepg "github.com/ukhsa-collaboration/covid19-app-system-public-sub006/state/postgres"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/submission"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the settings file")
	timeout := flag.Duration("timeout", 9*time.Minute, "hard deadline for the whole run")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	pgURL := mustEnv("DATABASE_URL")

	clk := clock.New()
	deadline := clk.Now().Add(*timeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	pool, err := pgxpool.New(ctx, pgURL)
	if err != nil {
		log.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()

	st, err := common.BuildObjectStore(cfg, clk)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	signer, err := common.BuildSigner(cfg)
	if err != nil {
		log.Fatalf("signing: %v", err)
	}
	client, err := federation.NewHTTPClient(cfg.Federation.BaseURL, cfg.Federation.AuthToken, signer)
	if err != nil {
		log.Fatalf("federation client: %v", err)
	}

	repo := submission.NewRepository(st,
		submission.WithKeyPredicate(common.UploadPredicate(cfg)),
		submission.WithWorkers(cfg.Distribution.Workers),
		submission.WithLoadTimeout(cfg.Distribution.LoadTimeout.Std()),
	)
	sync := federation.NewSync(client, statepg.NewStore(pool), federation.NewStoreSink(st, clk), repo, clk,
		federation.SyncConfig{
			Region:           cfg.Federation.Region,
			UploadLimit:      cfg.Federation.UploadLimit,
			UploadMaxResults: cfg.Federation.UploadMaxResults,
		})

	sched := scheduler.New(clk, deadline)
	if err := sync.Download(ctx, sched); err != nil {
		log.Fatalf("download: %v", err)
	}
	if err := sync.Upload(ctx); err != nil {
		log.Fatalf("upload: %v", err)
	}
	log.Info("federation sync complete")
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("%s env var is required", key)
	}
	return v
}
