package domain

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Session holds the process-wide identifiers stamped on every published point.
// It is built once at pipeline start and read-only afterwards, so separate runs
// over the same capture never aggregate into each other in the sink.
type Session struct {
	// ImportTime is the pipeline start time, ISO-8601 UTC.
	ImportTime string
	// Host is the machine the import ran on.
	Host string
	// ID is a random UUID unique to this run.
	ID string
	// DatabasePath is the frame-definition database the decode used.
	DatabasePath string
}

// NewSession captures the current host and time and mints a fresh session id.
func NewSession(databasePath string) Session {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return Session{
		ImportTime:   time.Now().UTC().Format(time.RFC3339),
		Host:         host,
		ID:           uuid.NewString(),
		DatabasePath: databasePath,
	}
}

// Tags returns the full tag set for a point seen on the given link.
func (s Session) Tags(link string) map[string]string {
	return map[string]string{
		"link":                 link,
		"import_time":          s.ImportTime,
		"host":                 s.Host,
		"session_id":           s.ID,
		"source_database_path": s.DatabasePath,
	}
}
