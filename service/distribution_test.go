package service_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/export"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/interval"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/model"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/period"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/service"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store/memory"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/submission"
)

func setupDistribution(t *testing.T, now time.Time) (*memory.Store, *service.Distribution, *ecdsa.PrivateKey) {
	t.Helper()
	clk := clock.NewMock()
	clk.Add(now.Sub(clk.Now()))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := signing.NewECDSASigner("key-123", key)
	require.NoError(t, err)

	st := memory.New(clk)
	repo := submission.NewRepository(st, submission.WithKeyPredicate(func(k string) bool {
		return strings.HasPrefix(k, "mobile/")
	}))
	distributor := export.NewDistributor(st, signing.NewDatedSigner(clk, signer))
	dist := service.NewDistribution(repo, distributor, signer, clk, service.DistributionConfig{
		LoadLimit:  1000,
		MaxResults: 1000,
	})
	return st, dist, key
}

func putSubmission(t *testing.T, st *memory.Store, key string, submittedAt time.Time, material byte) {
	t.Helper()
	sub := &model.Submission{
		SubmittedAt: submittedAt,
		Keys: []model.ExposureKey{{
			Key:                   bytes.Repeat([]byte{material}, model.KeySize),
			RollingStartNumber:    interval.Number(submittedAt.Truncate(24 * time.Hour)),
			RollingPeriod:         interval.TEKRollingPeriod,
			TransmissionRiskLevel: 4,
		}},
	}
	body, err := model.MarshalSubmission(sub)
	require.NoError(t, err)
	st.PutAt(key, body, submittedAt)
}

func readEntry(t *testing.T, zr *zip.Reader, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		return body
	}
	t.Fatalf("archive has no entry %s", name)
	return nil
}

func TestRun_DailyWindowPublishesAllArchives(t *testing.T) {
	now := time.Date(2020, 7, 20, 10, 30, 0, 0, time.UTC)
	st, dist, key := setupDistribution(t, now)
	ctx := context.Background()

	// Submitted on the 19th: belongs to the archive ending on the 20th.
	putSubmission(t, st, "mobile/a.json", time.Date(2020, 7, 19, 14, 0, 0, 0, time.UTC), 0xAA)
	// Submitted on the 20th: belongs to the current, still-open archive.
	putSubmission(t, st, "mobile/b.json", time.Date(2020, 7, 20, 8, 0, 0, 0, time.UTC), 0xBB)

	require.NoError(t, dist.Run(ctx, period.Daily))

	infos, err := st.List(ctx, "distribution/daily/")
	require.NoError(t, err)
	assert.Len(t, infos, 15)

	bin := readArchiveBin(t, st, "distribution/daily/2020072000.zip", key)
	assertSingleKey(t, bin, 0xAA)

	bin = readArchiveBin(t, st, "distribution/daily/2020072100.zip", key)
	assertSingleKey(t, bin, 0xBB)

	// A day with no submissions still gets an archive, just an empty one.
	bin = readArchiveBin(t, st, "distribution/daily/2020071000.zip", key)
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(bin[len(export.Header):]))
}

func TestRun_TwoHourlyWindowPublishesAllArchives(t *testing.T) {
	now := time.Date(2020, 7, 20, 10, 30, 0, 0, time.UTC)
	st, dist, _ := setupDistribution(t, now)
	ctx := context.Background()

	require.NoError(t, dist.Run(ctx, period.TwoHourly))

	infos, err := st.List(ctx, "distribution/two-hourly/")
	require.NoError(t, err)
	assert.Len(t, infos, 169)
}

func TestRun_ExpiredKeysAreExcluded(t *testing.T) {
	now := time.Date(2020, 7, 20, 10, 30, 0, 0, time.UTC)
	st, dist, key := setupDistribution(t, now)
	ctx := context.Background()

	// Submitted on the 8th, but carrying key material from well before the
	// validity window.
	submittedAt := time.Date(2020, 7, 8, 9, 0, 0, 0, time.UTC)
	sub := &model.Submission{
		SubmittedAt: submittedAt,
		Keys: []model.ExposureKey{{
			Key:                   bytes.Repeat([]byte{0xCC}, model.KeySize),
			RollingStartNumber:    interval.Number(now.AddDate(0, 0, -30)),
			RollingPeriod:         interval.TEKRollingPeriod,
			TransmissionRiskLevel: 4,
		}},
	}
	body, err := model.MarshalSubmission(sub)
	require.NoError(t, err)
	st.PutAt("mobile/old.json", body, submittedAt)

	require.NoError(t, dist.Run(ctx, period.Daily))

	bin := readArchiveBin(t, st, "distribution/daily/2020070900.zip", key)
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(bin[len(export.Header):]))
}

// readArchiveBin fetches an archive, checks its metadata signature over the
// zip bytes and the inner signature list over export.bin, and returns the
// export.bin payload.
func readArchiveBin(t *testing.T, st *memory.Store, path string, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	ctx := context.Background()

	zipBytes, meta, err := st.Get(ctx, path)
	require.NoError(t, err)
	assert.NotEmpty(t, meta[export.MetadataSignature], path)
	assert.NotEmpty(t, meta[export.MetadataSignatureDate], path)

	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	bin := readEntry(t, zr, export.BinEntryName)
	require.GreaterOrEqual(t, len(bin), len(export.Header)+4)
	assert.Equal(t, export.Header, string(bin[:len(export.Header)]))

	sigList := readEntry(t, zr, export.SigEntryName)
	assert.Contains(t, string(sigList), `"keyId":"key-123"`)

	digest := sha256.Sum256(zipBytes)
	der := extractSignature(t, meta[export.MetadataSignature])
	assert.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest[:], der), path)
	return bin
}

// extractSignature pulls the base64 DER signature out of the metadata value
// form keyId="...",signature="...".
func extractSignature(t *testing.T, value string) []byte {
	t.Helper()
	const marker = `signature="`
	i := strings.Index(value, marker)
	require.GreaterOrEqual(t, i, 0)
	rest := value[i+len(marker):]
	j := strings.Index(rest, `"`)
	require.GreaterOrEqual(t, j, 0)
	der, err := base64.StdEncoding.DecodeString(rest[:j])
	require.NoError(t, err)
	return der
}

func assertSingleKey(t *testing.T, bin []byte, material byte) {
	t.Helper()
	offset := len(export.Header)
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(bin[offset:]))
	offset += 4
	assert.Equal(t, bytes.Repeat([]byte{material}, model.KeySize), bin[offset:offset+model.KeySize])
}
