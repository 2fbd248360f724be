package submission_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/model"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store/memory"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/submission"
)

func submissionBody(t *testing.T, submittedAt time.Time) []byte {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(make([]byte, model.KeySize))
	body := fmt.Sprintf(
		`{"submittedAt":%q,"temporaryExposureKeys":[{"key":%q,"rollingStartNumber":2666736,"rollingPeriod":144,"transmissionRisk":4}]}`,
		submittedAt.Format(time.RFC3339), key)
	return []byte(body)
}

func TestLoadAll_FiltersAndSorts(t *testing.T) {
	clk := clock.NewMock()
	st := memory.New(clk)
	base := time.Date(2020, 7, 20, 0, 0, 0, 0, time.UTC)

	// Stored out of order; one older than the window.
	st.PutAt("mobile/a.json", submissionBody(t, base.Add(3*time.Hour)), base.Add(3*time.Hour))
	st.PutAt("mobile/b.json", submissionBody(t, base.Add(1*time.Hour)), base.Add(1*time.Hour))
	st.PutAt("mobile/old.json", submissionBody(t, base.Add(-time.Hour)), base.Add(-time.Hour))

	repo := submission.NewRepository(st)
	subs, err := repo.LoadAll(context.Background(), base, 10, 10)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, base.Add(1*time.Hour), subs[0].SubmittedAt)
	assert.Equal(t, base.Add(3*time.Hour), subs[1].SubmittedAt)
}

func TestLoadAll_KeyPredicate(t *testing.T) {
	clk := clock.NewMock()
	st := memory.New(clk)
	base := time.Date(2020, 7, 20, 0, 0, 0, 0, time.UTC)
	st.PutAt("mobile/a.json", submissionBody(t, base.Add(time.Hour)), base.Add(time.Hour))
	st.PutAt("other/b.json", submissionBody(t, base.Add(time.Hour)), base.Add(time.Hour))

	repo := submission.NewRepository(st, submission.WithKeyPredicate(func(key string) bool {
		return key[:7] == "mobile/"
	}))
	subs, err := repo.LoadAll(context.Background(), base, 10, 10)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestLoadAll_TieGroupNeverSplitArbitrarily(t *testing.T) {
	clk := clock.NewMock()
	st := memory.New(clk)
	base := time.Date(2020, 7, 20, 0, 0, 0, 0, time.UTC)
	at := base.Add(time.Hour)
	for i := 0; i < 5; i++ {
		st.PutAt(fmt.Sprintf("mobile/%d.json", i), submissionBody(t, at), at)
	}
	repo := submission.NewRepository(st)

	// Everything ties; maxResults caps the result deterministically.
	subs, err := repo.LoadAll(context.Background(), base, 3, 3)
	require.NoError(t, err)
	assert.Len(t, subs, 3)

	// With headroom the whole tie group comes along past the limit.
	subs, err = repo.LoadAll(context.Background(), base, 3, 10)
	require.NoError(t, err)
	assert.Len(t, subs, 5)

	// A later object beyond the tie group is excluded at limit.
	later := at.Add(time.Minute)
	st.PutAt("mobile/later.json", submissionBody(t, later), later)
	subs, err = repo.LoadAll(context.Background(), base, 5, 10)
	require.NoError(t, err)
	assert.Len(t, subs, 5)
}

func TestLoadAll_SkipsMalformed(t *testing.T) {
	clk := clock.NewMock()
	st := memory.New(clk)
	base := time.Date(2020, 7, 20, 0, 0, 0, 0, time.UTC)
	st.PutAt("mobile/ok.json", submissionBody(t, base.Add(time.Hour)), base.Add(time.Hour))
	st.PutAt("mobile/broken.json", []byte("not json"), base.Add(time.Hour))

	repo := submission.NewRepository(st)
	subs, err := repo.LoadAll(context.Background(), base, 10, 10)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

// vanishingStore lists a key whose body is already gone, simulating an
// object deleted between List and Get.
type vanishingStore struct {
	*memory.Store
	ghost string
}

func (v *vanishingStore) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	infos, err := v.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return append(infos, store.ObjectInfo{Key: v.ghost, LastModified: time.Date(2020, 7, 20, 2, 0, 0, 0, time.UTC)}), nil
}

func TestLoadAll_SkipsVanishedObjects(t *testing.T) {
	clk := clock.NewMock()
	base := time.Date(2020, 7, 20, 0, 0, 0, 0, time.UTC)
	inner := memory.New(clk)
	inner.PutAt("mobile/ok.json", submissionBody(t, base.Add(time.Hour)), base.Add(time.Hour))

	repo := submission.NewRepository(&vanishingStore{Store: inner, ghost: "mobile/gone.json"})
	subs, err := repo.LoadAll(context.Background(), base, 10, 10)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

// failingStore returns a non-NotFound error for one key.
type failingStore struct {
	*memory.Store
	bad string
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, store.Metadata, error) {
	if key == f.bad {
		return nil, nil, fmt.Errorf("connection reset")
	}
	return f.Store.Get(ctx, key)
}

func TestLoadAll_UnexpectedErrorAbortsBatch(t *testing.T) {
	clk := clock.NewMock()
	base := time.Date(2020, 7, 20, 0, 0, 0, 0, time.UTC)
	inner := memory.New(clk)
	inner.PutAt("mobile/ok.json", submissionBody(t, base.Add(time.Hour)), base.Add(time.Hour))
	inner.PutAt("mobile/bad.json", submissionBody(t, base.Add(time.Hour)), base.Add(time.Hour))

	repo := submission.NewRepository(&failingStore{Store: inner, bad: "mobile/bad.json"})
	_, err := repo.LoadAll(context.Background(), base, 10, 10)
	assert.Error(t, err)
}
