// Command exporter regenerates the full rolling window of signed export
// archives, daily and two-hourly, from the stored submissions.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/andres-erbsen/clock"
	log "github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/cmd/common"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/config"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/export"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/period"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/service"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/submission"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the settings file")
	timeout := flag.Duration("timeout", 10*time.Minute, "hard deadline for the whole run")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	clk := clock.New()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := common.BuildObjectStore(cfg, clk)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	signer, err := common.BuildSigner(cfg)
	if err != nil {
		log.Fatalf("signing: %v", err)
	}

	repo := submission.NewRepository(st,
		submission.WithKeyPredicate(common.ExportPredicate(cfg)),
		submission.WithWorkers(cfg.Distribution.Workers),
		submission.WithLoadTimeout(cfg.Distribution.LoadTimeout.Std()),
	)
	distributor := export.NewDistributor(st, signing.NewDatedSigner(clk, signer))
	dist := service.NewDistribution(repo, distributor, signer, clk, service.DistributionConfig{
		Offset:     cfg.Distribution.Offset.Std(),
		LoadLimit:  cfg.Distribution.LoadLimit,
		MaxResults: cfg.Distribution.MaxResults,
	})

	for _, kind := range []period.Kind{period.Daily, period.TwoHourly} {
		if err := dist.Run(ctx, kind); err != nil {
			log.Fatalf("export generation: %v", err)
		}
	}
	log.Info("export generation complete")
}
