// Package postgres persists sync cursors in a two-row key-value table:
//
//	CREATE TABLE sync_state (
//	    id         text PRIMARY KEY,
//	    state      jsonb NOT NULL,
//	    updated_at timestamptz NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/state"
)

type pgStore struct{ db *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) state.Store { return &pgStore{db: db} }

func (p *pgStore) LatestFederationBatch(ctx context.Context) (*state.FederationBatch, error) {
	var batch state.FederationBatch
	ok, err := p.read(ctx, state.DownloadStateID, &batch)
	if err != nil || !ok {
		return nil, err
	}
	return &batch, nil
}

func (p *pgStore) UpdateFederationBatch(ctx context.Context, batch state.FederationBatch) error {
	return p.write(ctx, state.DownloadStateID, batch)
}

func (p *pgStore) LastUploadState(ctx context.Context) (*state.UploadState, error) {
	var s state.UploadState
	ok, err := p.read(ctx, state.UploadStateID, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (p *pgStore) UpdateUploadState(ctx context.Context, s state.UploadState) error {
	return p.write(ctx, state.UploadStateID, s)
}

func (p *pgStore) read(ctx context.Context, id string, out any) (bool, error) {
	var encoded []byte
	err := p.db.QueryRow(ctx,
		`SELECT state FROM sync_state WHERE id=$1`, id).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", id, err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", id, err)
	}
	return true, nil
}

func (p *pgStore) write(ctx context.Context, id string, in any) error {
	encoded, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	_, err = p.db.Exec(ctx, `
        INSERT INTO sync_state (id, state, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (id) DO UPDATE
          SET state      = EXCLUDED.state,
              updated_at = now()
    `, id, encoded)
	if err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}
