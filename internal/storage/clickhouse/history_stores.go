package clickhouse

import (
	"context"
	"fmt"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

// SnapshotHistoryStore implements storage.SnapshotHistoryStore on ClickHouse.
type SnapshotHistoryStore struct {
	conn *Conn
}

// NewSnapshotHistoryStore creates a new SnapshotHistoryStore.
func NewSnapshotHistoryStore(conn *Conn) *SnapshotHistoryStore {
	return &SnapshotHistoryStore{conn: conn}
}

var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

// Append inserts one snapshot row.
func (s *SnapshotHistoryStore) Append(ctx context.Context, snap *domain.MetricSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO metric_snapshots (timestamp, sharpe, sortino, win_rate, trade_count, drawdown_bps)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	err := s.conn.Exec(ctx, query,
		snap.Timestamp,
		snap.Sharpe,
		snap.Sortino,
		snap.WinRate,
		int64(snap.TradeCount),
		snap.DrawdownBps,
	)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// SuiteHistoryStore implements storage.SuiteHistoryStore on ClickHouse.
// Each run is stored as one row per drill for per-drill dashboards.
type SuiteHistoryStore struct {
	conn *Conn
}

// NewSuiteHistoryStore creates a new SuiteHistoryStore.
func NewSuiteHistoryStore(conn *Conn) *SuiteHistoryStore {
	return &SuiteHistoryStore{conn: conn}
}

var _ storage.SuiteHistoryStore = (*SuiteHistoryStore)(nil)

// Append inserts the drill rows of one suite run in a single batch.
func (s *SuiteHistoryStore) Append(ctx context.Context, r *domain.SuiteResult) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO suite_runs (run_id, started_ts, finished_ts, all_passed, drill_name, drill_passed, details)
	`)
	if err != nil {
		return fmt.Errorf("prepare suite batch: %w", err)
	}

	for _, drill := range r.Results {
		err := batch.Append(
			r.RunID,
			r.StartedTs,
			r.FinishedTs,
			boolToUInt8(r.AllPassed),
			drill.Name,
			boolToUInt8(drill.Passed),
			drill.Details,
		)
		if err != nil {
			return fmt.Errorf("append drill row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send suite batch: %w", err)
	}
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
