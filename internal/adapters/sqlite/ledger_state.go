package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

// SaveState replaces the stored ledger state and open positions in one transaction.
func (r *Repository) SaveState(ctx context.Context, state *domain.LedgerState) error {
	marks, err := json.Marshal(state.Marks)
	if err != nil {
		return fmt.Errorf("failed to encode marks: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const upsert = `
	INSERT INTO ledger_state (id, starting_capital, realized_pnl, gross_realized_pnl, fees_paid,
	                          peak_equity, day_start_equity, daily_realized_pnl, daily_trade_count,
	                          trading_day, daily_loss_halted, drawdown_halted, halt_reason, marks_json, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		starting_capital = excluded.starting_capital,
		realized_pnl = excluded.realized_pnl,
		gross_realized_pnl = excluded.gross_realized_pnl,
		fees_paid = excluded.fees_paid,
		peak_equity = excluded.peak_equity,
		day_start_equity = excluded.day_start_equity,
		daily_realized_pnl = excluded.daily_realized_pnl,
		daily_trade_count = excluded.daily_trade_count,
		trading_day = excluded.trading_day,
		daily_loss_halted = excluded.daily_loss_halted,
		drawdown_halted = excluded.drawdown_halted,
		halt_reason = excluded.halt_reason,
		marks_json = excluded.marks_json,
		updated_at = excluded.updated_at`

	_, err = tx.ExecContext(ctx, upsert,
		state.StartingCapital, state.RealizedPnL, state.GrossRealizedPnL, state.FeesPaid,
		state.PeakEquity, state.DayStartEquity, state.DailyRealizedPnL, state.DailyTradeCount,
		state.TradingDay, state.DailyLossHalted, state.DrawdownHalted, state.HaltReason, string(marks), state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert ledger state: %w", ports.ErrUpdateFailed, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("%w: failed to clear positions: %w", ports.ErrUpdateFailed, err)
	}
	const insertPos = `
	INSERT INTO positions (id, symbol, side, entry_price, quantity, opened_at, updated_at, seq)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for i, p := range state.Positions {
		if _, err := tx.ExecContext(ctx, insertPos,
			p.ID, p.Symbol, string(p.Side), p.EntryPrice, p.Quantity, p.OpenedAt, p.UpdatedAt, i); err != nil {
			return fmt.Errorf("%w: failed to insert position %s: %w", ports.ErrUpdateFailed, p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit ledger state: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Ledger state saved", map[string]interface{}{
		"positions":   len(state.Positions),
		"tradesToday": state.DailyTradeCount,
	})
	return nil
}

// LoadState returns the stored ledger state, or nil, nil if none was saved yet.
func (r *Repository) LoadState(ctx context.Context) (*domain.LedgerState, error) {
	const query = `
	SELECT starting_capital, realized_pnl, gross_realized_pnl, fees_paid, peak_equity,
	       day_start_equity, daily_realized_pnl, daily_trade_count, trading_day,
	       daily_loss_halted, drawdown_halted, halt_reason, marks_json, updated_at
	FROM ledger_state WHERE id = 1`

	s := &domain.LedgerState{}
	var marks string
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.StartingCapital, &s.RealizedPnL, &s.GrossRealizedPnL, &s.FeesPaid, &s.PeakEquity,
		&s.DayStartEquity, &s.DailyRealizedPnL, &s.DailyTradeCount, &s.TradingDay,
		&s.DailyLossHalted, &s.DrawdownHalted, &s.HaltReason, &marks, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load ledger state: %w", ports.ErrQueryFailed, err)
	}

	s.Marks = make(map[string]decimal.Decimal)
	if err := json.Unmarshal([]byte(marks), &s.Marks); err != nil {
		return nil, fmt.Errorf("failed to decode marks: %w", err)
	}

	positions, err := r.loadPositions(ctx)
	if err != nil {
		return nil, err
	}
	s.Positions = positions
	return s, nil
}

func (r *Repository) loadPositions(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT id, symbol, side, entry_price, quantity, opened_at, updated_at
	FROM positions ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query positions: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side string
	if err := s.Scan(&p.ID, &p.Symbol, &side, &p.EntryPrice, &p.Quantity, &p.OpenedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Side = domain.PositionSide(side)
	return p, nil
}
