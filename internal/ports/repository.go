package ports

import (
	"context"
	"time"

	"cryptoBiasBot/internal/domain"
)

// CoinConfigRepository defines the interface for reading per-symbol
// configuration. Configs are written by an external API; the engine reads a
// fresh copy once per evaluation cycle.
type CoinConfigRepository interface {
	// FindBySymbol retrieves the config for a symbol.
	// Returns nil, nil if no config exists.
	FindBySymbol(ctx context.Context, symbol string) (*domain.CoinConfig, error)
	// FindEnabled retrieves all configs with trading enabled.
	FindEnabled(ctx context.Context) ([]*domain.CoinConfig, error)
	// Upsert stores or replaces the config for a symbol.
	Upsert(ctx context.Context, cfg *domain.CoinConfig) error
}

// AnalysisRepository defines the interface for storing and retrieving
// evaluation-cycle outcomes.
type AnalysisRepository interface {
	// Create persists one analysis and returns its assigned ID.
	// (symbol, time) is unique; a duplicate insert fails with ErrDuplicateEntry.
	Create(ctx context.Context, a *domain.Analysis) (int64, error)
	// FindRecent retrieves the most recent analyses for a symbol, newest first.
	FindRecent(ctx context.Context, symbol string, limit int) ([]*domain.Analysis, error)
}

// PositionRepository defines the interface for storing and retrieving trading
// positions.
type PositionRepository interface {
	// Create saves a new position and returns its assigned ID.
	Create(ctx context.Context, pos *domain.Position) (int64, error)
	// Update modifies an existing position. The position's Version must match
	// the stored row; a mismatch fails with ErrConcurrencyConflict and the
	// caller must reload and re-evaluate against fresh state.
	Update(ctx context.Context, pos *domain.Position) error
	// FindOpenBySymbol retrieves open positions for a symbol, oldest first.
	FindOpenBySymbol(ctx context.Context, symbol string) ([]*domain.Position, error)
	// FindByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Position, error)
	// CountOpen counts open positions across all symbols.
	CountOpen(ctx context.Context) (int, error)
	// LastEntryTime returns the opened-at time of the most recent position
	// for a symbol (any status). Zero time when the symbol has no positions.
	LastEntryTime(ctx context.Context, symbol string) (time.Time, error)
}
