package queue

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor marks the last job of a page for keyset pagination.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// DecodeCursor parses an opaque cursor. An empty string means "first page".
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	nanos, id, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &Cursor{CreatedAt: time.Unix(0, ts).UTC(), ID: id}, nil
}

// Encode renders the cursor as an opaque URL-safe string.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + c.ID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Page trims a result fetched with PageSize+1 rows and returns the next cursor.
func Page(jobs []Job, pageSize int) ([]Job, string) {
	if len(jobs) <= pageSize {
		return jobs, ""
	}
	jobs = jobs[:pageSize]
	last := jobs[len(jobs)-1]
	return jobs, Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
}
