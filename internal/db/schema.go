package db

// SchemaVersion is the current database schema version
const SchemaVersion = 3

// BaseSchema returns the full client schema DDL. The server uses it to build
// snapshot databases that clients can swap in directly.
func BaseSchema() string {
	return schema
}

const schema = `
-- Users table
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    role TEXT DEFAULT '',
    avatar_url TEXT DEFAULT '',
    avatar_updated_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Realtors table
CREATE TABLE IF NOT EXISTS realtors (
    id TEXT PRIMARY KEY,
    user_id TEXT DEFAULT '',
    name TEXT NOT NULL,
    license_no TEXT DEFAULT '',
    phone TEXT DEFAULT '',
    email TEXT DEFAULT '',
    brokerage TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Contacts table
CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'other',
    phone TEXT DEFAULT '',
    email TEXT DEFAULT '',
    notes TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Properties table
CREATE TABLE IF NOT EXISTS properties (
    id TEXT PRIMARY KEY,
    address TEXT NOT NULL,
    unit TEXT DEFAULT '',
    city TEXT DEFAULT '',
    state TEXT DEFAULT '',
    postal_code TEXT DEFAULT '',
    property_type TEXT NOT NULL DEFAULT 'house',
    beds INTEGER DEFAULT 0,
    baths REAL DEFAULT 0,
    sqft INTEGER DEFAULT 0,
    year_built INTEGER DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Listings table
CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    property_id TEXT NOT NULL,
    realtor_id TEXT DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    list_price INTEGER DEFAULT 0,
    commission_pct REAL DEFAULT 0,
    mls_number TEXT DEFAULT '',
    photos TEXT DEFAULT '[]',
    listed_at DATETIME,
    closed_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME,
    FOREIGN KEY (property_id) REFERENCES properties(id)
);

-- Tasks table
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open',
    priority TEXT NOT NULL DEFAULT 'P2',
    assignee_id TEXT DEFAULT '',
    listing_id TEXT DEFAULT '',
    tags TEXT DEFAULT '',
    due_at DATETIME,
    completed_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Subtasks table
CREATE TABLE IF NOT EXISTS subtasks (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    title TEXT NOT NULL,
    done INTEGER DEFAULT 0,
    position INTEGER DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (task_id) REFERENCES tasks(id)
);

-- Activities table (append-only feed)
CREATE TABLE IF NOT EXISTS activities (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL DEFAULT 'note',
    body TEXT NOT NULL DEFAULT '',
    actor_id TEXT DEFAULT '',
    task_id TEXT DEFAULT '',
    listing_id TEXT DEFAULT '',
    contact_id TEXT DEFAULT '',
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Notes table
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    parent_type TEXT NOT NULL,
    parent_id TEXT NOT NULL,
    body TEXT NOT NULL,
    author_id TEXT DEFAULT '',
    pinned INTEGER DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Status changes table (append-only)
CREATE TABLE IF NOT EXISTS status_changes (
    id TEXT PRIMARY KEY,
    listing_id TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    changed_by TEXT DEFAULT '',
    reason TEXT DEFAULT '',
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Showings table
CREATE TABLE IF NOT EXISTS showings (
    id TEXT PRIMARY KEY,
    listing_id TEXT NOT NULL,
    contact_id TEXT DEFAULT '',
    realtor_id TEXT DEFAULT '',
    scheduled_at DATETIME NOT NULL,
    duration_min INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'scheduled',
    feedback TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Action log: the outbox. Every local mutation lands here; push drains it.
CREATE TABLE IF NOT EXISTS action_log (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    action_type TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    previous_data TEXT DEFAULT '',
    new_data TEXT DEFAULT '',
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    undone INTEGER DEFAULT 0,
    synced_at DATETIME,
    server_seq INTEGER,
    attempts INTEGER DEFAULT 0,
    next_retry_at DATETIME,
    last_error TEXT DEFAULT '',
    failed_at DATETIME
);

-- Pending uploads: avatar files staged for upload before the user row syncs
CREATE TABLE IF NOT EXISTS pending_uploads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL UNIQUE,
    file_path TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT 'image/png',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    attempts INTEGER DEFAULT 0,
    last_error TEXT DEFAULT ''
);

-- Sync state: one row per linked team
CREATE TABLE IF NOT EXISTS sync_state (
    team_id TEXT PRIMARY KEY,
    last_pushed_action_id INTEGER DEFAULT 0,
    last_pulled_server_seq INTEGER DEFAULT 0,
    last_sync_at DATETIME,
    sync_disabled INTEGER DEFAULT 0
);

-- Sync history: recent push/pull outcomes for the tail view
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    direction TEXT NOT NULL,
    action_type TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    server_seq INTEGER,
    device_id TEXT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Sync conflicts: remote overwrites of locally modified rows
CREATE TABLE IF NOT EXISTS sync_conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    server_seq INTEGER NOT NULL,
    local_data TEXT,
    remote_data TEXT,
    overwritten_at DATETIME NOT NULL,
    resolved_at DATETIME
);

-- Schema info table for version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee_id);
CREATE INDEX IF NOT EXISTS idx_tasks_listing ON tasks(listing_id);
CREATE INDEX IF NOT EXISTS idx_tasks_deleted ON tasks(deleted_at);
CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id);
CREATE INDEX IF NOT EXISTS idx_listings_property ON listings(property_id);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
CREATE INDEX IF NOT EXISTS idx_listings_deleted ON listings(deleted_at);
CREATE INDEX IF NOT EXISTS idx_activities_task ON activities(task_id);
CREATE INDEX IF NOT EXISTS idx_activities_listing ON activities(listing_id);
CREATE INDEX IF NOT EXISTS idx_activities_occurred ON activities(occurred_at);
CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_type, parent_id);
CREATE INDEX IF NOT EXISTS idx_status_changes_listing ON status_changes(listing_id);
CREATE INDEX IF NOT EXISTS idx_showings_listing ON showings(listing_id);
CREATE INDEX IF NOT EXISTS idx_action_log_session ON action_log(session_id);
CREATE INDEX IF NOT EXISTS idx_action_log_synced ON action_log(synced_at);
CREATE INDEX IF NOT EXISTS idx_action_log_retry ON action_log(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_sync_conflicts_entity ON sync_conflicts(entity_type, entity_id);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add retry bookkeeping to action_log",
		SQL: `
ALTER TABLE action_log ADD COLUMN attempts INTEGER DEFAULT 0;
ALTER TABLE action_log ADD COLUMN next_retry_at DATETIME;
ALTER TABLE action_log ADD COLUMN last_error TEXT DEFAULT '';
ALTER TABLE action_log ADD COLUMN failed_at DATETIME;
CREATE INDEX IF NOT EXISTS idx_action_log_retry ON action_log(next_retry_at);
`,
	},
	{
		Version:     3,
		Description: "Add pending_uploads queue for avatar staging",
		SQL: `
CREATE TABLE IF NOT EXISTS pending_uploads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL UNIQUE,
    file_path TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT 'image/png',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    attempts INTEGER DEFAULT 0,
    last_error TEXT DEFAULT ''
);
`,
	},
}
