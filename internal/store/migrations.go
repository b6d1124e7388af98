package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS slots (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'other',
	content    TEXT NOT NULL,
	read       INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	pending    INTEGER NOT NULL DEFAULT 0 CHECK(pending IN (0, 1)),
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(user_id, read);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS messages (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	sender_role     TEXT NOT NULL CHECK(sender_role IN ('doctor', 'patient')),
	recipient_id    TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	attachments     TEXT NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL DEFAULT 'sent' CHECK(status IN ('sent', 'read')),
	pending         TEXT NOT NULL DEFAULT '' CHECK(pending IN ('', 'send', 'read')),
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(pending);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
