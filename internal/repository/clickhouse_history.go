package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ForecastMix/internal/domain/models"
	"ForecastMix/internal/domain/repository"
	pkgch "ForecastMix/pkg/clickhouse"
	applogger "ForecastMix/pkg/logger"
)

// ClickHouseHistory implements HistoryStore for ClickHouse.
type ClickHouseHistory struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewClickHouseHistory creates a ClickHouse-backed step history store.
func NewClickHouseHistory(ch *pkgch.Client, table string) repository.HistoryStore {
	return &ClickHouseHistory{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *ClickHouseHistory) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseHistory) Init(ctx context.Context) error {
	q := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            mixture_id    String,
            step          UInt32,
            ts            DateTime,
            prediction    Float64,
            observation   Float64,
            loss          Float64,
            expert_losses Array(Float64),
            weights       Array(Float64),
            flagged       UInt8
        ) ENGINE = MergeTree()
        ORDER BY (mixture_id, step)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init history table: %w", err)
	}
	return nil
}

func (s *ClickHouseHistory) Append(ctx context.Context, row *models.StepRow) error {
	q := fmt.Sprintf("INSERT INTO %s (mixture_id, step, ts, prediction, observation, loss, expert_losses, weights, flagged) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		row.MixtureID,
		uint32(row.Step),
		row.Timestamp,
		row.Prediction,
		row.Observation,
		row.Loss,
		row.ExpertLosses,
		row.Weights,
		boolToUint8(row.Flagged),
	)
	return err
}

func (s *ClickHouseHistory) AppendBatch(ctx context.Context, rows []*models.StepRow) error {
	if len(rows) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, r := range rows[start:end] {
			if r == nil || r.MixtureID == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.MixtureID,
				uint32(r.Step),
				r.Timestamp,
				r.Prediction,
				r.Observation,
				r.Loss,
				r.ExpertLosses,
				r.Weights,
				boolToUint8(r.Flagged),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (mixture_id, step, ts, prediction, observation, loss, expert_losses, weights, flagged) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseHistory) Query(ctx context.Context, mixtureID string, limit int) ([]*models.StepRow, error) {
	start := time.Now()
	q := fmt.Sprintf("SELECT mixture_id, step, ts, prediction, observation, loss, expert_losses, weights, flagged FROM %s WHERE mixture_id = ? ORDER BY step ASC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, mixtureID, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error",
				applogger.String("table", s.table),
				applogger.String("mixture", mixtureID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]*models.StepRow, 0, 256)
	for rows.Next() {
		var r models.StepRow
		var step uint32
		var flagged uint8
		if err := rows.Scan(&r.MixtureID, &step, &r.Timestamp, &r.Prediction, &r.Observation, &r.Loss, &r.ExpertLosses, &r.Weights, &flagged); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Step = int(step)
		r.Flagged = flagged != 0
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.l != nil {
		s.l.Debug("clickhouse history query",
			applogger.String("mixture", mixtureID),
			applogger.Int("rows", len(out)),
			applogger.Duration("took", time.Since(start)),
		)
	}
	return out, nil
}

func (s *ClickHouseHistory) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseHistory) Close() error {
	return nil // Managed by pkg
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
