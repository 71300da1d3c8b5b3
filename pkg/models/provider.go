package models

import "time"

// ProviderRecord is the normalized form of one provider's data for one issue
// edition. Every external source is mapped into this shape at the provider
// client boundary; nothing downstream knows provider-specific formats.
//
// Records are short-lived: they feed reconciliation and are then discarded,
// surviving only as provenance metadata on the resulting Edition.
type ProviderRecord struct {
	Provider  string      `json:"provider"`
	SeriesKey string      `json:"series_key"`
	Volume    int         `json:"volume"`
	Number    IssueNumber `json:"number"`
	Line      string      `json:"line"` // edition line, e.g. "original"

	Title     string    `json:"title"`
	CoverDate time.Time `json:"cover_date,omitempty"`
	Creators  []string  `json:"creators,omitempty"`
	CoverURL  string    `json:"cover_url,omitempty"`

	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// IssueKey returns the issue key this record describes.
func (r *ProviderRecord) IssueKey() IssueKey {
	return IssueKey{SeriesKey: r.SeriesKey, Volume: r.Volume, Number: r.Number}
}
