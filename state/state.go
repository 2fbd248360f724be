// Package state persists the federation synchronization cursors. The two
// cursors are the sole durable state of the sync protocol: the last-seen
// download batch and the last successful upload watermark.
package state

import (
	"context"
	"time"
)

// Fixed logical row ids.
const (
	DownloadStateID = "lastDownloadState"
	UploadStateID   = "lastUploadState"
)

// FederationBatch records the last remote batch fully consumed for a date.
// Written only after the page it names was successfully processed.
type FederationBatch struct {
	BatchTag  string    `json:"batchTag"`
	BatchDate time.Time `json:"batchDate"`
}

// UploadState records the submission watermark of the last successful
// upload. Written only after the upload call fully succeeded.
type UploadState struct {
	LastUploadedAt time.Time `json:"lastUploadTimestamp"`
}

// Store reads and writes the two cursor rows. The rows are independent;
// there is no cross-row transaction. A nil cursor means "never synchronized"
// and callers must treat it as the starting point.
type Store interface {
	LatestFederationBatch(ctx context.Context) (*FederationBatch, error)
	UpdateFederationBatch(ctx context.Context, batch FederationBatch) error
	LastUploadState(ctx context.Context) (*UploadState, error)
	UpdateUploadState(ctx context.Context, s UploadState) error
}
