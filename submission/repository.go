// Package submission retrieves raw per-device key submissions from object
// storage for export generation and federation upload.
package submission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/model"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
)

const (
	// DefaultWorkers bounds the number of concurrent object fetches.
	DefaultWorkers = 12
	// DefaultLoadTimeout is the wall-clock budget for one LoadAll call.
	DefaultLoadTimeout = 6 * time.Minute
)

// KeyPredicate scopes a load to a subset of object keys, e.g. by test-kit
// prefix. A nil predicate accepts everything.
type KeyPredicate func(key string) bool

// Repository loads submissions from an ObjectStore.
type Repository struct {
	store   store.ObjectStore
	pred    KeyPredicate
	workers int
	timeout time.Duration
	log     *logrus.Entry
}

// Option configures a Repository.
type Option func(*Repository)

func WithKeyPredicate(pred KeyPredicate) Option {
	return func(r *Repository) { r.pred = pred }
}

func WithWorkers(n int) Option {
	return func(r *Repository) { r.workers = n }
}

func WithLoadTimeout(d time.Duration) Option {
	return func(r *Repository) { r.timeout = d }
}

func NewRepository(st store.ObjectStore, opts ...Option) *Repository {
	r := &Repository{
		store:   st,
		workers: DefaultWorkers,
		timeout: DefaultLoadTimeout,
		log:     logrus.WithField("component", "submission-repository"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadAll returns the submissions stored after minExclusive, ordered by
// submittedAt ascending.
//
// Object selection orders by lastModified ascending and takes up to limit
// objects; past limit it keeps taking only objects sharing the exact
// lastModified of the limit-th one (so a batch written in the same instant
// is never split across runs), capped at maxResults.
//
// Objects deleted between List and Get are skipped, as are bodies that fail
// to parse. Any other storage error aborts the whole batch. The entire call
// runs under the repository's load timeout.
func (r *Repository) LoadAll(ctx context.Context, minExclusive time.Time, limit, maxResults int) ([]model.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	infos, err := r.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	candidates := infos[:0]
	for _, info := range infos {
		if r.pred != nil && !r.pred(info.Key) {
			continue
		}
		if !info.LastModified.After(minExclusive) {
			continue
		}
		candidates = append(candidates, info)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].LastModified.Equal(candidates[j].LastModified) {
			return candidates[i].LastModified.Before(candidates[j].LastModified)
		}
		return candidates[i].Key < candidates[j].Key
	})
	selected := selectWithTies(candidates, limit, maxResults)

	var (
		mu          sync.Mutex
		submissions []model.Submission
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, info := range selected {
		info := info
		g.Go(func() error {
			body, _, err := r.store.Get(ctx, info.Key)
			if store.IsNotFound(err) {
				r.log.WithField("key", info.Key).Warn("submission vanished between list and get, skipping")
				return nil
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", info.Key, err)
			}
			sub, err := model.ParseSubmission(body)
			if err != nil {
				r.log.WithField("key", info.Key).WithError(err).Warn("malformed submission, skipping")
				return nil
			}
			mu.Lock()
			submissions = append(submissions, *sub)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(submissions, func(i, j int) bool {
		return submissions[i].SubmittedAt.Before(submissions[j].SubmittedAt)
	})
	return submissions, nil
}

// selectWithTies takes the first limit objects of the lastModified-ascending
// slice, extends the cut while further objects tie exactly with the limit-th
// lastModified, and stops at maxResults in any case.
func selectWithTies(sorted []store.ObjectInfo, limit, maxResults int) []store.ObjectInfo {
	if limit > maxResults {
		limit = maxResults
	}
	if len(sorted) <= limit {
		return sorted
	}
	out := sorted[:limit]
	if limit == 0 {
		return out
	}
	cut := sorted[limit-1].LastModified
	for _, info := range sorted[limit:] {
		if len(out) >= maxResults || !info.LastModified.Equal(cut) {
			break
		}
		out = append(out, info)
	}
	return out
}
