package database

import "database/sql"

// Schema is the full platform schema. The uniqueness of (environment_id, url)
// on webhooks is enforced here so concurrent creates of the same URL cannot
// race past an application-level check.
const Schema = `
CREATE TABLE IF NOT EXISTS organisations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	organisation_id TEXT NOT NULL REFERENCES organisations(id),
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'admin',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	organisation_id TEXT NOT NULL REFERENCES organisations(id),
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS environments (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	api_key TEXT UNIQUE NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_environments_api_key ON environments(api_key);

CREATE TABLE IF NOT EXISTS identities (
	id TEXT PRIMARY KEY,
	environment_id TEXT NOT NULL REFERENCES environments(id),
	identifier TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(environment_id, identifier)
);

CREATE TABLE IF NOT EXISTS traits (
	id TEXT PRIMARY KEY,
	identity_id TEXT NOT NULL REFERENCES identities(id),
	trait_key TEXT NOT NULL,
	trait_value TEXT,
	created_at INTEGER NOT NULL,
	UNIQUE(identity_id, trait_key)
);

CREATE TABLE IF NOT EXISTS features (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	description TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(project_id, name)
);

CREATE TABLE IF NOT EXISTS feature_states (
	id TEXT PRIMARY KEY,
	environment_id TEXT NOT NULL REFERENCES environments(id),
	feature_id TEXT NOT NULL REFERENCES features(id),
	enabled INTEGER NOT NULL DEFAULT 0,
	value TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(environment_id, feature_id)
);

CREATE TABLE IF NOT EXISTS webhooks (
	id TEXT PRIMARY KEY,
	environment_id TEXT NOT NULL REFERENCES environments(id),
	url TEXT NOT NULL,
	secret TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(environment_id, url)
);
CREATE INDEX IF NOT EXISTS idx_webhooks_environment ON webhooks(environment_id);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id TEXT PRIMARY KEY,
	webhook_id TEXT NOT NULL,
	environment_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_status_code INTEGER,
	last_error TEXT,
	next_retry_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_webhook ON webhook_deliveries(webhook_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_status ON webhook_deliveries(status, updated_at);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	environment_id TEXT NOT NULL,
	user_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	metadata TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_environment ON audit_logs(environment_id, created_at);
`

// Migrate applies the schema. Statements are idempotent so this is safe to
// run on every boot.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
