package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoBiasBot/internal/domain"
	"cryptoBiasBot/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// Repository owns the SQLite connection and schema. The per-aggregate
// repositories (coin configs, analyses, positions) share it; obtain them via
// Configs, Analyses and Positions.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/bias_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// Configs returns the coin-config repository backed by this connection.
func (r *Repository) Configs() *CoinConfigRepo { return &CoinConfigRepo{r} }

// Analyses returns the analysis repository backed by this connection.
func (r *Repository) Analyses() *AnalysisRepo { return &AnalysisRepo{r} }

// Positions returns the position repository backed by this connection.
func (r *Repository) Positions() *PositionRepo { return &PositionRepo{r} }

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS coin_configs (
		symbol TEXT PRIMARY KEY,
		timeframe TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		config TEXT NOT NULL, -- Full config document as JSON
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		cycle_time TIMESTAMP NOT NULL,
		timeframe TEXT NOT NULL,
		modules TEXT NOT NULL, -- Per-module results as JSON
		long_score REAL NOT NULL,
		short_score REAL NOT NULL,
		coverage REAL NOT NULL,
		bias TEXT NOT NULL,
		decision TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL DEFAULT 1,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		size REAL NOT NULL,
		initial_size REAL NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		stop_price REAL NOT NULL,
		initial_stop_price REAL NOT NULL,
		stop_order_id INTEGER NOT NULL DEFAULT 0,
		take_profits TEXT NOT NULL,
		initial_tps TEXT NOT NULL,
		trailing TEXT NOT NULL,
		adjustments TEXT NOT NULL,
		adds TEXT NOT NULL,
		meta TEXT NOT NULL,
		analysis_id INTEGER NOT NULL DEFAULT 0,
		closed_at TIMESTAMP DEFAULT NULL,
		closed_by TEXT DEFAULT NULL,
		final_pnl REAL NOT NULL DEFAULT 0
	);

	-- One analysis per symbol and cycle; re-running a past cycle must fail loudly.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_analyses_symbol_time ON analyses (symbol, cycle_time);
	CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_positions_opened_at ON positions (symbol, opened_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// --- CoinConfigRepository Implementation ---

// CoinConfigRepo implements ports.CoinConfigRepository.
type CoinConfigRepo struct {
	*Repository
}

// FindBySymbol retrieves the config for a symbol. Returns nil, nil if no config exists.
func (r *CoinConfigRepo) FindBySymbol(ctx context.Context, symbol string) (*domain.CoinConfig, error) {
	const query = `SELECT config FROM coin_configs WHERE symbol = ?`

	var doc string
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query coin config for symbol %s: %w", symbol, err)
	}
	cfg, err := decodeCoinConfig(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode coin config for symbol %s: %w", symbol, err)
	}
	return cfg, nil
}

// FindEnabled retrieves all configs with trading enabled.
func (r *CoinConfigRepo) FindEnabled(ctx context.Context) ([]*domain.CoinConfig, error) {
	const query = `SELECT config FROM coin_configs WHERE enabled = 1 ORDER BY symbol`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled coin configs: %w", err)
	}
	defer rows.Close()

	configs := make([]*domain.CoinConfig, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan coin config row: %w", err)
		}
		cfg, err := decodeCoinConfig(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode coin config row: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coin config rows: %w", err)
	}
	return configs, nil
}

// Upsert stores or replaces the config for a symbol.
func (r *CoinConfigRepo) Upsert(ctx context.Context, cfg *domain.CoinConfig) error {
	const query = `
	INSERT INTO coin_configs (symbol, timeframe, enabled, config, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		timeframe = excluded.timeframe,
		enabled = excluded.enabled,
		config = excluded.config,
		updated_at = excluded.updated_at`

	doc, err := encodeCoinConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode coin config for symbol %s: %w", cfg.Symbol, err)
	}
	_, err = r.db.ExecContext(ctx, query, cfg.Symbol, cfg.Timeframe, cfg.Enabled, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert coin config for symbol %s: %w", cfg.Symbol, err)
	}
	r.logger.Debug(ctx, "Coin config upserted", map[string]interface{}{"symbol": cfg.Symbol, "enabled": cfg.Enabled})
	return nil
}

// --- AnalysisRepository Implementation ---

// AnalysisRepo implements ports.AnalysisRepository.
type AnalysisRepo struct {
	*Repository
}

// Create persists one analysis and returns its assigned ID.
func (r *AnalysisRepo) Create(ctx context.Context, a *domain.Analysis) (int64, error) {
	const query = `
	INSERT INTO analyses (symbol, cycle_time, timeframe, modules, long_score, short_score, coverage, bias, decision)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	modules, err := encodeModules(a.Modules)
	if err != nil {
		return 0, fmt.Errorf("failed to encode module results for symbol %s: %w", a.Symbol, err)
	}

	result, err := r.db.ExecContext(ctx, query,
		a.Symbol, a.Time, a.Timeframe, modules,
		a.Scores.Long, a.Scores.Short, a.Coverage, a.Bias, a.Decision)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("analysis for %s at %s: %w", a.Symbol, a.Time.Format(time.RFC3339), ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert analysis for symbol %s: %w", a.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for analysis %s: %w", a.Symbol, err)
	}
	a.ID = id // Update the domain object with the ID
	r.logger.Debug(ctx, "Analysis created", map[string]interface{}{"analysisID": id, "symbol": a.Symbol, "decision": a.Decision})
	return id, nil
}

// FindRecent retrieves the most recent analyses for a symbol, newest first.
func (r *AnalysisRepo) FindRecent(ctx context.Context, symbol string, limit int) ([]*domain.Analysis, error) {
	const query = `
	SELECT id, symbol, cycle_time, timeframe, modules, long_score, short_score, coverage, bias, decision
	FROM analyses
	WHERE symbol = ? ORDER BY cycle_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	analyses := make([]*domain.Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis during FindRecent: %w", err)
		}
		analyses = append(analyses, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis rows: %w", err)
	}
	return analyses, nil
}

// --- PositionRepository Implementation ---

// PositionRepo implements ports.PositionRepository.
type PositionRepo struct {
	*Repository
}

// Create saves a new position and returns its assigned ID.
func (r *PositionRepo) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (version, symbol, side, entry_price, size, initial_size, opened_at, status,
	                       stop_price, initial_stop_price, stop_order_id,
	                       take_profits, initial_tps, trailing, adjustments, adds, meta,
	                       analysis_id, closed_at, closed_by, final_pnl)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	enc, err := encodePositionState(pos)
	if err != nil {
		return 0, fmt.Errorf("failed to encode position state for symbol %s: %w", pos.Symbol, err)
	}

	result, err := r.db.ExecContext(ctx, query,
		1, pos.Symbol, pos.Side, pos.EntryPrice, pos.Size, pos.InitialSize, pos.OpenedAt, pos.Status,
		pos.StopPrice, pos.InitialStopPrice, pos.StopOrderID,
		enc.takeProfits, enc.initialTPs, enc.trailing, enc.adjustments, enc.adds, enc.meta,
		pos.AnalysisID, nullTime(pos.ClosedAt), nullString(string(pos.ClosedBy)), pos.FinalPnl)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for symbol %s: %w", pos.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Symbol, err)
	}
	pos.ID = id
	pos.Version = 1
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "symbol": pos.Symbol, "side": pos.Side})
	return id, nil
}

// Update modifies an existing position, enforcing the optimistic version
// check. A stale version fails with ErrConcurrencyConflict.
func (r *PositionRepo) Update(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET version = version + 1, entry_price = ?, size = ?, initial_size = ?, status = ?,
	    stop_price = ?, stop_order_id = ?,
	    take_profits = ?, initial_tps = ?, trailing = ?, adjustments = ?, adds = ?, meta = ?,
	    closed_at = ?, closed_by = ?, final_pnl = ?
	WHERE id = ? AND version = ?`

	enc, err := encodePositionState(pos)
	if err != nil {
		return fmt.Errorf("failed to encode position state for ID %d: %w", pos.ID, err)
	}

	result, err := r.db.ExecContext(ctx, query,
		pos.EntryPrice, pos.Size, pos.InitialSize, pos.Status,
		pos.StopPrice, pos.StopOrderID,
		enc.takeProfits, enc.initialTPs, enc.trailing, enc.adjustments, enc.adds, enc.meta,
		nullTime(pos.ClosedAt), nullString(string(pos.ClosedBy)), pos.FinalPnl,
		pos.ID, pos.Version)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", pos.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing row from a stale version.
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE id = ?`, pos.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check existence of position ID %d: %w", pos.ID, err)
		}
		if exists == 0 {
			return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
		}
		return fmt.Errorf("position ID %d version %d is stale: %w", pos.ID, pos.Version, ports.ErrConcurrencyConflict)
	}
	pos.Version++
	r.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol, "status": pos.Status, "version": pos.Version})
	return nil
}

// FindOpenBySymbol retrieves open positions for a symbol, oldest first.
func (r *PositionRepo) FindOpenBySymbol(ctx context.Context, symbol string) ([]*domain.Position, error) {
	const query = positionSelect + ` WHERE symbol = ? AND status = ? ORDER BY opened_at ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpenBySymbol: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// FindByID retrieves a position by its unique ID. Returns nil, nil if not found.
func (r *PositionRepo) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	const query = positionSelect + ` WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w", id, err)
	}
	return pos, nil
}

// CountOpen counts open positions across all symbols.
func (r *PositionRepo) CountOpen(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM positions WHERE status = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, domain.StatusOpen).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}
	return count, nil
}

// LastEntryTime returns the opened-at time of the most recent position for a
// symbol. Zero time when the symbol has no positions.
func (r *PositionRepo) LastEntryTime(ctx context.Context, symbol string) (time.Time, error) {
	const query = `SELECT opened_at FROM positions WHERE symbol = ? ORDER BY opened_at DESC LIMIT 1`
	var t time.Time
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to query last entry time for symbol %s: %w", symbol, err)
	}
	return t, nil
}

// --- Helper Scan Functions ---

const positionSelect = `
	SELECT id, version, symbol, side, entry_price, size, initial_size, opened_at, status,
	       stop_price, initial_stop_price, stop_order_id,
	       take_profits, initial_tps, trailing, adjustments, adds, meta,
	       analysis_id, closed_at, closed_by, final_pnl
	FROM positions`

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var (
		side, status                                         string
		takeProfits, initialTPs, trailing, adjustments, adds string
		meta                                                 string
		closedAt                                             sql.NullTime
		closedBy                                             sql.NullString
	)
	err := s.Scan(
		&p.ID, &p.Version, &p.Symbol, &side, &p.EntryPrice, &p.Size, &p.InitialSize, &p.OpenedAt, &status,
		&p.StopPrice, &p.InitialStopPrice, &p.StopOrderID,
		&takeProfits, &initialTPs, &trailing, &adjustments, &adds, &meta,
		&p.AnalysisID, &closedAt, &closedBy, &p.FinalPnl)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	if closedBy.Valid {
		p.ClosedBy = domain.ClosedBy(closedBy.String)
	}
	if err := decodePositionState(p, takeProfits, initialTPs, trailing, adjustments, adds, meta); err != nil {
		return nil, fmt.Errorf("failed to decode position state for ID %d: %w", p.ID, err)
	}
	return p, nil
}

// scanAnalysis scans a row into a domain.Analysis struct.
func scanAnalysis(s scanner) (*domain.Analysis, error) {
	a := &domain.Analysis{}
	var modules, bias, decision string
	err := s.Scan(
		&a.ID, &a.Symbol, &a.Time, &a.Timeframe, &modules,
		&a.Scores.Long, &a.Scores.Short, &a.Coverage, &bias, &decision)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	a.Bias = domain.Signal(bias)
	a.Decision = domain.Decision(decision)
	a.Modules, err = decodeModules(modules)
	if err != nil {
		return nil, fmt.Errorf("failed to decode module results for analysis ID %d: %w", a.ID, err)
	}
	return a, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
