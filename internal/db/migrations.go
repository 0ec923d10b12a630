package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS positions (
    id TEXT PRIMARY KEY,
    market_id TEXT NOT NULL,
    question TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL,
    opened_at INTEGER NOT NULL,
    lot_size REAL NOT NULL,
    yes_price_paid REAL NOT NULL,
    no_price_paid REAL NOT NULL,
    edge_at_entry REAL NOT NULL,
    status TEXT NOT NULL,
    realized_pnl REAL,
    closed_at INTEGER,
    close_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_positions_market ON positions(market_id);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);

CREATE TABLE IF NOT EXISTS market_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id TEXT NOT NULL,
    category TEXT NOT NULL,
    yes_price REAL NOT NULL,
    no_price REAL NOT NULL,
    liquidity REAL NOT NULL,
    close_time INTEGER NOT NULL,
    status TEXT NOT NULL,
    fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_market_time ON market_snapshots(market_id, fetched_at);
`
