package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/interval"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/model"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/scheduler"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/state"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/submission"
)

// InboundPrefix is where downloaded federation keys are written back into
// the submission store, so the ordinary export pipeline picks them up.
const InboundPrefix = "federation/inbound/"

// KeySink consumes one successfully downloaded page.
type KeySink interface {
	Accept(ctx context.Context, batchTag string, date time.Time, exposures []Exposure) error
}

// Sync drives the bidirectional exchange with the gateway. Downloads resume
// from the persisted batch cursor; uploads resume from the persisted
// watermark. Each cursor is advanced only after its network call and local
// processing fully succeeded, which yields at-least-once semantics: a crash
// in between re-does the page or re-uploads the same keys under a new batch
// tag on the next run. De-duplication is the gateway's responsibility.
type Sync struct {
	client Client
	state  state.Store
	sink   KeySink
	repo   *submission.Repository
	clk    clock.Clock
	region string
	log    *logrus.Entry

	uploadLimit      int
	uploadMaxResults int
}

type SyncConfig struct {
	Region           string
	UploadLimit      int
	UploadMaxResults int
}

func NewSync(client Client, st state.Store, sink KeySink, repo *submission.Repository, clk clock.Clock, cfg SyncConfig) *Sync {
	return &Sync{
		client:           client,
		state:            st,
		sink:             sink,
		repo:             repo,
		clk:              clk,
		region:           cfg.Region,
		uploadLimit:      cfg.UploadLimit,
		uploadMaxResults: cfg.UploadMaxResults,
		log:              logrus.WithField("component", "federation-sync"),
	}
}

// Download pulls remote pages while sched still has budget, persisting the
// batch cursor after every consumed page. Running out of budget is normal
// termination; the next run resumes from the cursor.
func (s *Sync) Download(ctx context.Context, sched *scheduler.Scheduler) error {
	today := s.clk.Now().UTC().Truncate(24 * time.Hour)
	date, tag := today, ""
	if cursor, err := s.state.LatestFederationBatch(ctx); err != nil {
		return fmt.Errorf("load download cursor: %w", err)
	} else if cursor != nil {
		date, tag = cursor.BatchDate.UTC().Truncate(24*time.Hour), cursor.BatchTag
	}

	for !date.After(today) {
		dayDone := false
		ran, err := sched.Run(func() error {
			result, err := s.client.Download(ctx, date, tag)
			if err != nil {
				return err
			}
			switch page := result.(type) {
			case Available:
				if err := s.sink.Accept(ctx, page.BatchTag, date, page.Exposures); err != nil {
					return fmt.Errorf("process batch %s: %w", page.BatchTag, err)
				}
				batch := state.FederationBatch{BatchTag: page.BatchTag, BatchDate: date}
				if err := s.state.UpdateFederationBatch(ctx, batch); err != nil {
					return fmt.Errorf("persist download cursor: %w", err)
				}
				tag = page.BatchTag
				s.log.WithFields(logrus.Fields{
					"batchTag":  page.BatchTag,
					"date":      date.Format(DateFormat),
					"exposures": len(page.Exposures),
				}).Info("consumed federation batch")
			case NoContent:
				dayDone = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !ran {
			s.log.Info("download budget exhausted, resuming next run")
			return nil
		}
		if dayDone {
			date, tag = date.AddDate(0, 0, 1), ""
		}
	}
	return nil
}

// Upload pushes local submissions newer than the persisted watermark and
// advances the watermark only once the gateway acknowledged the batch.
func (s *Sync) Upload(ctx context.Context) error {
	since := time.Time{}
	if up, err := s.state.LastUploadState(ctx); err != nil {
		return fmt.Errorf("load upload watermark: %w", err)
	} else if up != nil {
		since = up.LastUploadedAt
	}
	now := s.clk.Now().UTC()

	subs, err := s.repo.LoadAll(ctx, since, s.uploadLimit, s.uploadMaxResults)
	if err != nil {
		return fmt.Errorf("load submissions for upload: %w", err)
	}
	exposures := s.exposuresFrom(subs, now)
	if len(exposures) == 0 {
		s.log.Info("no keys to upload")
		return nil
	}

	ack, err := s.client.Upload(ctx, exposures)
	if err != nil {
		// Never retried here: a blind retry could double-submit. The cursor
		// stays put so the next scheduled run uploads fresh data.
		return fmt.Errorf("upload: %w", err)
	}
	if err := s.state.UpdateUploadState(ctx, state.UploadState{LastUploadedAt: now}); err != nil {
		return fmt.Errorf("persist upload watermark: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"batchTag": ack.BatchTag,
		"inserted": ack.InsertedExposures,
		"uploaded": len(exposures),
	}).Info("uploaded keys to federation gateway")
	return nil
}

func (s *Sync) exposuresFrom(subs []model.Submission, now time.Time) []Exposure {
	var exposures []Exposure
	for _, sub := range subs {
		for _, k := range sub.Keys {
			if !interval.IsValid(k.RollingStartNumber, k.RollingPeriod, now) {
				continue
			}
			exposures = append(exposures, Exposure{
				KeyData:                  k.Key,
				RollingStartNumber:       k.RollingStartNumber,
				TransmissionRiskLevel:    k.TransmissionRiskLevel,
				RollingPeriod:            k.RollingPeriod,
				Regions:                  []string{s.region},
				DaysSinceOnsetOfSymptoms: k.DaysSinceOnsetOfSymptoms,
			})
		}
	}
	return exposures
}

// StoreSink writes downloaded pages into the submission store under
// InboundPrefix, one object per batch, in the ordinary stored submission
// format. Out-of-policy keys in a page are dropped and logged, never
// retried.
type StoreSink struct {
	store store.ObjectStore
	clk   clock.Clock
	log   *logrus.Entry
}

func NewStoreSink(st store.ObjectStore, clk clock.Clock) *StoreSink {
	return &StoreSink{
		store: st,
		clk:   clk,
		log:   logrus.WithField("component", "federation-sink"),
	}
}

func (s *StoreSink) Accept(ctx context.Context, batchTag string, date time.Time, exposures []Exposure) error {
	sub := model.Submission{SubmittedAt: s.clk.Now().UTC()}
	for _, e := range exposures {
		if len(e.KeyData) != model.KeySize ||
			e.RollingStartNumber <= 0 ||
			e.RollingPeriod < 1 || e.RollingPeriod > interval.TEKRollingPeriod {
			s.log.WithField("batchTag", batchTag).Warn("dropping out-of-policy federation key")
			continue
		}
		risk := e.TransmissionRiskLevel
		if risk < 0 {
			risk = 0
		} else if risk > 7 {
			risk = 7
		}
		// Every stored key must pass the submission parser, or the whole
		// object would be skipped on read and the rest of the page lost
		// with it.
		days := e.DaysSinceOnsetOfSymptoms
		if days != nil && (*days < model.MinDaysSinceOnset || *days > model.MaxDaysSinceOnset) {
			days = nil
		}
		sub.Keys = append(sub.Keys, model.ExposureKey{
			Key:                      e.KeyData,
			RollingStartNumber:       e.RollingStartNumber,
			RollingPeriod:            e.RollingPeriod,
			TransmissionRiskLevel:    risk,
			DaysSinceOnsetOfSymptoms: days,
		})
	}
	if len(sub.Keys) == 0 {
		return nil
	}
	body, err := model.MarshalSubmission(&sub)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s/%s.json", InboundPrefix, date.Format(DateFormat), batchTag)
	return s.store.Put(ctx, key, body, nil)
}
