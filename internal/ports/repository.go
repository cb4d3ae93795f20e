package ports

import (
	"context"

	"cryptoRiskEngine/internal/domain"
)

// LedgerRepository persists the ledger so that a restart does not reset risk state.
type LedgerRepository interface {
	// SaveState replaces the stored ledger state, including open positions.
	SaveState(ctx context.Context, state *domain.LedgerState) error
	// LoadState returns the stored ledger state, or nil, nil if none exists.
	LoadState(ctx context.Context) (*domain.LedgerState, error)
	// CreateTrade saves a closed trade and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindTrades returns the most recent trades in chronological order.
	// A non-positive limit returns all trades.
	FindTrades(ctx context.Context, limit int) ([]*domain.Trade, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// AuditRepository records operator and risk events.
type AuditRepository interface {
	RecordAudit(ctx context.Context, entry *domain.AuditEntry) error
	FindAudit(ctx context.Context, limit int) ([]*domain.AuditEntry, error)
}
