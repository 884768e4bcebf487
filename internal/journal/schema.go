package journal

// Schema creates the journal tables. Decimals are stored as TEXT to keep
// full precision.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	entry_type TEXT NOT NULL,
	amount TEXT NOT NULL,
	balance_after TEXT NOT NULL,
	currency TEXT NOT NULL,
	order_id TEXT,
	position_id TEXT,
	description TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, created_at);

CREATE TABLE IF NOT EXISTS account_snapshots (
	account_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	balance TEXT NOT NULL,
	equity TEXT NOT NULL,
	margin_used TEXT NOT NULL,
	margin_available TEXT NOT NULL,
	version INTEGER NOT NULL,
	PRIMARY KEY (account_id, version)
);
`
