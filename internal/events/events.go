package events

import (
	"time"

	"comicshelf/pkg/models"
)

const (
	TypeSyncCompleted    = "sync.completed"
	TypeOwnershipChanged = "ownership.changed"
	TypeMetadataUpdated  = "metadata.updated"
)

type SyncCompleted struct {
	Type      string    `json:"type"`
	SeriesKey string    `json:"series_key"`
	Issues    int       `json:"issues"`
	Conflicts int       `json:"conflicts,omitempty"`
	At        time.Time `json:"at"`
}

type OwnershipChanged struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	IssueKey string    `json:"issue_key"`
	Line     string    `json:"line"`
	State    string    `json:"state"`
	At       time.Time `json:"at"`
}

type MetadataUpdated struct {
	Type     string    `json:"type"`
	IssueKey string    `json:"issue_key"`
	Line     string    `json:"line"`
	Fields   []string  `json:"fields,omitempty"`
	At       time.Time `json:"at"`
}

func NewSyncCompleted(seriesKey string, issues, conflicts int) SyncCompleted {
	return SyncCompleted{
		Type:      TypeSyncCompleted,
		SeriesKey: seriesKey,
		Issues:    issues,
		Conflicts: conflicts,
		At:        time.Now().UTC(),
	}
}

func NewOwnershipChanged(rec models.OwnershipRecord) OwnershipChanged {
	return OwnershipChanged{
		Type:     TypeOwnershipChanged,
		UserID:   rec.UserID,
		IssueKey: rec.IssueKey.String(),
		Line:     rec.Line,
		State:    rec.State,
		At:       time.Now().UTC(),
	}
}

func NewMetadataUpdated(key models.IssueKey, line string, fields []string) MetadataUpdated {
	return MetadataUpdated{
		Type:     TypeMetadataUpdated,
		IssueKey: key.String(),
		Line:     line,
		Fields:   fields,
		At:       time.Now().UTC(),
	}
}
