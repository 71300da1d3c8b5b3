package models

import "time"

// Well-known edition lines. The set is open: providers may report other line
// names and they are kept as-is, keyed by name.
const (
	LineOriginal = "original"
	LineReprint  = "reprint"
)

// Edition field names used in provenance maps.
const (
	FieldTitle     = "title"
	FieldCoverDate = "cover_date"
	FieldCreators  = "creators"
	FieldCoverURL  = "cover_url"
)

// Edition is one published realization of an issue on a specific edition line
// (original release, reprint, translated release, ...). Its catalog fields are
// the reconciled result of all provider records seen for the line, with
// per-field provenance recording which provider won.
type Edition struct {
	IssueKey  IssueKey  `json:"issue_key"`
	Line      string    `json:"line"`
	Title     string    `json:"title"`
	CoverDate time.Time `json:"cover_date,omitempty"`
	Creators  []string  `json:"creators,omitempty"`
	CoverURL  string    `json:"cover_url,omitempty"`

	Provenance map[string]FieldProvenance `json:"provenance,omitempty"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// Clone returns a deep copy of the edition.
func (e *Edition) Clone() *Edition {
	out := *e
	if e.Creators != nil {
		out.Creators = append([]string(nil), e.Creators...)
	}
	if e.Provenance != nil {
		out.Provenance = make(map[string]FieldProvenance, len(e.Provenance))
		for k, v := range e.Provenance {
			out.Provenance[k] = v
		}
	}
	return &out
}

// FieldProvenance records where one reconciled field value came from.
type FieldProvenance struct {
	Provider  string    `json:"provider"`   // provider whose value won
	FetchedAt time.Time `json:"fetched_at"` // when the winning record was fetched
	Conflict  bool      `json:"conflict"`   // another provider supplied a different non-empty value
}
