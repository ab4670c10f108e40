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

CREATE TABLE IF NOT EXISTS actions (
	id                TEXT PRIMARY KEY,
	meeting_id        TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	created_by        TEXT NOT NULL,
	text              TEXT NOT NULL,
	category          TEXT NOT NULL DEFAULT 'action',
	assigned_to       TEXT NOT NULL DEFAULT 'me',
	due_context       TEXT NOT NULL DEFAULT 'unspecified',
	start_date        DATETIME,
	end_date          DATETIME,
	completion_date   DATETIME,
	priority          INTEGER NOT NULL DEFAULT 3,
	confidence        REAL NOT NULL DEFAULT 0,
	success_criteria  TEXT NOT NULL DEFAULT '',
	motivation        TEXT NOT NULL DEFAULT '',
	micro_tasks       TEXT NOT NULL DEFAULT '[]',
	status            TEXT NOT NULL DEFAULT 'not_started',
	scheduled_date    TEXT NOT NULL DEFAULT '',
	scheduled_time    TEXT NOT NULL DEFAULT '',
	calendar_event_id TEXT NOT NULL DEFAULT '',
	extraction_method TEXT NOT NULL DEFAULT 'rules',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
	meeting_id             TEXT PRIMARY KEY,
	user_id                TEXT NOT NULL,
	key_topics             TEXT NOT NULL DEFAULT '[]',
	main_decisions         TEXT NOT NULL DEFAULT '[]',
	participants_mentioned TEXT NOT NULL DEFAULT '[]',
	overall_tone           TEXT NOT NULL DEFAULT '',
	empowering_takeaway    TEXT NOT NULL DEFAULT '',
	created_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	action_id        TEXT REFERENCES actions(id),
	title            TEXT NOT NULL,
	date             TEXT NOT NULL,
	time             TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 30,
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_meeting_id ON actions(meeting_id);
CREATE INDEX IF NOT EXISTS idx_actions_user_id ON actions(user_id);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
CREATE INDEX IF NOT EXISTS idx_events_user_date ON events(user_id, date);
CREATE INDEX IF NOT EXISTS idx_events_action_id ON events(action_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
