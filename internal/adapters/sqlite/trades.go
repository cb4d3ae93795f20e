package sqlite

import (
	"context"
	"fmt"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trade_history (position_id, order_id, symbol, side, entry_price, exit_price,
	                           quantity, gross_pnl, fee, realized_pnl, opened_at, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.PositionID, trade.OrderID, trade.Symbol, string(trade.Side), trade.EntryPrice, trade.ExitPrice,
		trade.Quantity, trade.GrossPnL, trade.Fee, trade.RealizedPnL, trade.OpenedAt, trade.ClosedAt)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert trade history for symbol %s: %w", ports.ErrUpdateFailed, trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade history %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade history created", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "pnl": trade.RealizedPnL.String()})
	return id, nil
}

// FindTrades returns the most recent trades in chronological order.
// A non-positive limit returns the full history.
func (r *Repository) FindTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, position_id, order_id, symbol, side, entry_price, exit_price,
	       quantity, gross_pnl, fee, realized_pnl, opened_at, closed_at
	FROM (
		SELECT * FROM trade_history ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trade history: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade history during FindTrades: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade history rows: %w", err)
	}
	return trades, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side string
	err := s.Scan(
		&t.ID, &t.PositionID, &t.OrderID, &t.Symbol, &side, &t.EntryPrice, &t.ExitPrice,
		&t.Quantity, &t.GrossPnL, &t.Fee, &t.RealizedPnL, &t.OpenedAt, &t.ClosedAt)
	if err != nil {
		return nil, err
	}
	t.Side = domain.PositionSide(side)
	return t, nil
}
