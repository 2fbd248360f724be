// Package model holds the domain types shared by the distribution and
// federation pipelines: temporary exposure keys and the submissions that
// carry them.
package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/interval"
)

// KeySize is the length of a temporary exposure key in bytes.
const KeySize = 16

// MinDaysSinceOnset and MaxDaysSinceOnset bound the optional
// daysSinceOnsetOfSymptoms field.
const (
	MinDaysSinceOnset = -14
	MaxDaysSinceOnset = 14
)

// ExposureKey is one device's rotating key for one validity window.
// Immutable once created by the submitting device.
type ExposureKey struct {
	Key                      []byte
	RollingStartNumber       int64
	RollingPeriod            int
	TransmissionRiskLevel    int
	DaysSinceOnsetOfSymptoms *int
}

// Submission is one device's upload of test-positive keys. Owned by blob
// storage until consumed by a generation job; never mutated.
type Submission struct {
	SubmittedAt time.Time
	Keys        []ExposureKey
}

type storedKey struct {
	Key                      string `json:"key"`
	RollingStartNumber       int64  `json:"rollingStartNumber"`
	RollingPeriod            int    `json:"rollingPeriod"`
	TransmissionRisk         int    `json:"transmissionRisk"`
	DaysSinceOnsetOfSymptoms *int   `json:"daysSinceOnsetOfSymptoms,omitempty"`
}

type storedSubmission struct {
	SubmittedAt           time.Time   `json:"submittedAt"`
	TemporaryExposureKeys []storedKey `json:"temporaryExposureKeys"`
}

// ParseSubmission decodes and validates one stored submission object.
// Keys that fail policy checks make the whole object malformed; malformed
// objects are skipped upstream, never retried.
func ParseSubmission(body []byte) (*Submission, error) {
	var raw storedSubmission
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	if raw.SubmittedAt.IsZero() {
		return nil, fmt.Errorf("submission has no submittedAt")
	}
	keys := make([]ExposureKey, 0, len(raw.TemporaryExposureKeys))
	for i, k := range raw.TemporaryExposureKeys {
		key, err := k.toExposureKey()
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return &Submission{SubmittedAt: raw.SubmittedAt.UTC(), Keys: keys}, nil
}

// MarshalSubmission renders a submission in the stored object format. Used
// when downloaded federation keys are fed back into the submission store.
func MarshalSubmission(s *Submission) ([]byte, error) {
	raw := storedSubmission{
		SubmittedAt:           s.SubmittedAt.UTC(),
		TemporaryExposureKeys: make([]storedKey, 0, len(s.Keys)),
	}
	for _, k := range s.Keys {
		raw.TemporaryExposureKeys = append(raw.TemporaryExposureKeys, storedKey{
			Key:                      base64.StdEncoding.EncodeToString(k.Key),
			RollingStartNumber:       k.RollingStartNumber,
			RollingPeriod:            k.RollingPeriod,
			TransmissionRisk:         k.TransmissionRiskLevel,
			DaysSinceOnsetOfSymptoms: k.DaysSinceOnsetOfSymptoms,
		})
	}
	return json.Marshal(raw)
}

func (k storedKey) toExposureKey() (ExposureKey, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(k.Key)
	if err != nil {
		return ExposureKey{}, fmt.Errorf("key material is not base64: %w", err)
	}
	if len(keyBytes) != KeySize {
		return ExposureKey{}, fmt.Errorf("key material is %d bytes, want %d", len(keyBytes), KeySize)
	}
	if k.RollingPeriod < 1 || k.RollingPeriod > interval.TEKRollingPeriod {
		return ExposureKey{}, fmt.Errorf("rolling period %d out of range", k.RollingPeriod)
	}
	if k.RollingStartNumber <= 0 {
		return ExposureKey{}, fmt.Errorf("rolling start number %d out of range", k.RollingStartNumber)
	}
	if k.TransmissionRisk < 0 || k.TransmissionRisk > 7 {
		return ExposureKey{}, fmt.Errorf("transmission risk %d out of range", k.TransmissionRisk)
	}
	if k.DaysSinceOnsetOfSymptoms != nil {
		if d := *k.DaysSinceOnsetOfSymptoms; d < MinDaysSinceOnset || d > MaxDaysSinceOnset {
			return ExposureKey{}, fmt.Errorf("days since onset %d out of range", d)
		}
	}
	return ExposureKey{
		Key:                      keyBytes,
		RollingStartNumber:       k.RollingStartNumber,
		RollingPeriod:            k.RollingPeriod,
		TransmissionRiskLevel:    k.TransmissionRisk,
		DaysSinceOnsetOfSymptoms: k.DaysSinceOnsetOfSymptoms,
	}, nil
}
