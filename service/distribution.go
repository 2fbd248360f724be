// Package service orchestrates export generation: load eligible submissions,
// select the keys valid for each period of the rolling window, build and
// sign the archive, publish it.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/export"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/interval"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/model"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/period"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/submission"
)

// Distribution regenerates the full rolling window of export archives on
// every run, so late-arriving submissions still land in older exports.
type Distribution struct {
	repo        *submission.Repository
	distributor *export.Distributor
	signer      signing.Signer
	clk         clock.Clock
	offset      time.Duration // eventual-consistency slack for period coverage
	loadLimit   int
	maxResults  int
	log         *logrus.Entry
}

type DistributionConfig struct {
	Offset     time.Duration
	LoadLimit  int
	MaxResults int
}

func NewDistribution(repo *submission.Repository, distributor *export.Distributor, signer signing.Signer, clk clock.Clock, cfg DistributionConfig) *Distribution {
	return &Distribution{
		repo:        repo,
		distributor: distributor,
		signer:      signer,
		clk:         clk,
		offset:      cfg.Offset,
		loadLimit:   cfg.LoadLimit,
		maxResults:  cfg.MaxResults,
		log:         logrus.WithField("component", "distribution"),
	}
}

// Run builds and publishes one archive per period of the rolling window for
// the given bucket kind.
func (d *Distribution) Run(ctx context.Context, kind period.Kind) error {
	now := d.clk.Now().UTC()
	current := period.ForSubmissionDate(kind, now)
	periods := current.AllPeriodsToGenerate()

	// One load covers the whole window: the oldest period start bounds it.
	oldest := periods[len(periods)-1]
	minExclusive := oldest.EndExclusive().Add(-oldest.Bucket()).Add(d.offset)
	subs, err := d.repo.LoadAll(ctx, minExclusive, d.loadLimit, d.maxResults)
	if err != nil {
		return fmt.Errorf("load submissions: %w", err)
	}

	for _, p := range periods {
		if err := d.generate(ctx, p, subs, now); err != nil {
			return fmt.Errorf("generate %s: %w", p.ZipPath(), err)
		}
	}
	return nil
}

func (d *Distribution) generate(ctx context.Context, p period.Period, subs []model.Submission, now time.Time) error {
	keys := selectKeys(p, subs, d.offset, now)

	bin, err := export.EncodeKeys(keys)
	if err != nil {
		return err
	}
	sig, err := d.signer.Sign(ctx, bin)
	if err != nil {
		return err
	}
	sigList, err := export.EncodeSignatureList(sig)
	if err != nil {
		return err
	}
	if err := d.distributor.Distribute(ctx, p.ZipPath(), bin, sigList); err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{"path": p.ZipPath(), "keys": len(keys)}).Debug("generated export")
	return nil
}

// selectKeys returns the keys of all submissions covered by p that are still
// within the validity window at now.
func selectKeys(p period.Period, subs []model.Submission, offset time.Duration, now time.Time) []model.ExposureKey {
	var keys []model.ExposureKey
	for _, sub := range subs {
		if !p.IsCoveringSubmissionDate(sub.SubmittedAt, offset) {
			continue
		}
		for _, k := range sub.Keys {
			if interval.IsValid(k.RollingStartNumber, k.RollingPeriod, now) {
				keys = append(keys, k)
			}
		}
	}
	return keys
}
