// Package federation exchanges diagnosis keys with an external federation
// gateway: local keys are uploaded as a signed JWS batch, remote keys are
// downloaded page by page using server-issued batch tags.
package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
)

// DateFormat is the date path segment format of the download endpoint.
const DateFormat = "2006-01-02"

// Exposure is the gateway's wire representation of one diagnosis key.
type Exposure struct {
	KeyData                  []byte   `json:"keyData"`
	RollingStartNumber       int64    `json:"rollingStartNumber"`
	TransmissionRiskLevel    int      `json:"transmissionRiskLevel"`
	RollingPeriod            int      `json:"rollingPeriod"`
	Regions                  []string `json:"regions"`
	DaysSinceOnsetOfSymptoms *int     `json:"daysSinceOnsetOfSymptoms,omitempty"`
}

// DownloadResult is the outcome of one download call: either Available (a
// page of exposures plus the tag for the next call) or NoContent (no more
// pages for that date).
type DownloadResult interface{ downloadResult() }

type Available struct {
	BatchTag  string     `json:"batchTag"`
	Exposures []Exposure `json:"exposures"`
}

type NoContent struct{}

func (Available) downloadResult() {}
func (NoContent) downloadResult() {}

// UploadResponse is the gateway's acknowledgement of an upload.
type UploadResponse struct {
	BatchTag          string `json:"batchTag"`
	InsertedExposures int    `json:"insertedExposures"`
}

// Client is the gateway protocol surface, abstracted for fakes in tests.
type Client interface {
	Download(ctx context.Context, date time.Time, batchTag string) (DownloadResult, error)
	Upload(ctx context.Context, exposures []Exposure) (*UploadResponse, error)
}

// HTTPClient talks to a federation gateway over HTTPS with bearer-token
// authentication.
//
// Downloads are retried with exponential backoff on transport failures only;
// an unexpected status code is terminal for the run. Uploads are never
// retried here: a retry after an ambiguous failure could double-submit keys,
// so the failure surfaces and the next scheduled run re-uploads under a
// fresh batch tag.
type HTTPClient struct {
	base       *url.URL
	authToken  string
	signer     signing.Signer
	httpClient *http.Client
	newBackoff func() backoff.BackOff
}

func NewHTTPClient(baseURL, authToken string, signer signing.Signer) (*HTTPClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("federation base url: %w", err)
	}
	return &HTTPClient{
		base:       base,
		authToken:  authToken,
		signer:     signer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}, nil
}

// Download fetches one page of keys for date, continuing from batchTag if
// non-empty.
func (c *HTTPClient) Download(ctx context.Context, date time.Time, batchTag string) (DownloadResult, error) {
	u := c.base.JoinPath("diagnosiskeys", "download", date.UTC().Format(DateFormat))
	if batchTag != "" {
		q := u.Query()
		q.Set("batchTag", batchTag)
		u.RawQuery = q.Encode()
	}

	var result DownloadResult
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.authToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // transport failure, retry
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			var page Available
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				return backoff.Permanent(fmt.Errorf("decode download page: %w", err))
			}
			result = page
			return nil
		case http.StatusNoContent:
			result = NoContent{}
			return nil
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("download returned %d: %s", resp.StatusCode, body))
		}
	}
	if err := backoff.Retry(operation, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

type uploadRequest struct {
	BatchTag string `json:"batchTag"`
	Payload  string `json:"payload"`
}

// Upload signs the key list into a JWS envelope and posts it under a freshly
// generated batch tag.
func (c *HTTPClient) Upload(ctx context.Context, exposures []Exposure) (*UploadResponse, error) {
	payload, err := json.Marshal(exposures)
	if err != nil {
		return nil, fmt.Errorf("encode upload payload: %w", err)
	}
	envelope, err := SignJWS(ctx, c.signer, payload)
	if err != nil {
		return nil, fmt.Errorf("sign upload payload: %w", err)
	}
	body, err := json.Marshal(uploadRequest{
		BatchTag: uuid.NewString(),
		Payload:  envelope,
	})
	if err != nil {
		return nil, err
	}

	u := c.base.JoinPath("diagnosiskeys", "upload")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("upload returned %d: %s", resp.StatusCode, raw)
	}
	var ack UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &ack, nil
}
