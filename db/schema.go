package db

import (
	"database/sql"
	"fmt"
)

// NotifyChannel carries the session id of every inserted attendance record.
const NotifyChannel = "attendance_records"

const Schema = `
-- Create sessions table
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    subject_code TEXT NOT NULL,
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ
);

-- An owner has at most one session without an end time
CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_owner
    ON sessions (owner_id) WHERE end_time IS NULL;

CREATE INDEX IF NOT EXISTS sessions_owner_end_time
    ON sessions (owner_id, end_time DESC);

-- Create students table
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    tupid TEXT NOT NULL DEFAULT '',
    section TEXT NOT NULL DEFAULT '',
    face_embedding DOUBLE PRECISION[] NOT NULL
);

-- Create attendance_records table
CREATE TABLE IF NOT EXISTS attendance_records (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    name TEXT NOT NULL,
    tupid TEXT NOT NULL,
    section TEXT NOT NULL,
    subject_code TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
    UNIQUE(session_id, student_id)
);

CREATE INDEX IF NOT EXISTS attendance_records_session_time
    ON attendance_records (session_id, recorded_at DESC);

CREATE OR REPLACE FUNCTION notify_attendance_record() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('` + NotifyChannel + `', NEW.session_id);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS attendance_records_notify ON attendance_records;
CREATE TRIGGER attendance_records_notify
    AFTER INSERT ON attendance_records
    FOR EACH ROW EXECUTE FUNCTION notify_attendance_record();
`

// InitSchema initializes the database schema
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	if err != nil {
		return fmt.Errorf("error initializing database schema: %w", err)
	}
	return nil
}
