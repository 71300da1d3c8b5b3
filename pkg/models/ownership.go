package models

import (
	"fmt"
	"strings"
	"time"
)

// Ownership states for one (issue, edition line) pair.
const (
	StateWishlist = "wishlist"
	StateOwned    = "owned"
	StateRead     = "read"
	StateSold     = "sold"
	StateTraded   = "traded"
)

// NormalizeState lowercases and validates an ownership state string.
// Returns "" for anything unknown.
func NormalizeState(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StateWishlist:
		return StateWishlist
	case StateOwned:
		return StateOwned
	case StateRead:
		return StateRead
	case StateSold:
		return StateSold
	case StateTraded:
		return StateTraded
	default:
		return ""
	}
}

// OwnershipRecord is a user's state for one edition of one issue.
type OwnershipRecord struct {
	UserID     string     `json:"user_id"`
	IssueKey   IssueKey   `json:"issue_key"`
	Line       string     `json:"line"`
	State      string     `json:"state"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	DisposedAt *time.Time `json:"disposed_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Counted reports whether this record counts toward collection completeness.
// Wishlisted, sold and traded issues are gaps, not holdings.
func (r *OwnershipRecord) Counted() bool {
	return r.State == StateOwned || r.State == StateRead
}

// Validate checks the record's internal consistency: a disposal (sold/traded)
// requires an acquisition timestamp that precedes the disposal timestamp.
func (r *OwnershipRecord) Validate() error {
	if NormalizeState(r.State) == "" {
		return fmt.Errorf("unknown ownership state %q", r.State)
	}
	if r.State == StateSold || r.State == StateTraded {
		if r.AcquiredAt == nil {
			return fmt.Errorf("state %s requires an acquisition timestamp", r.State)
		}
		if r.DisposedAt == nil {
			return fmt.Errorf("state %s requires a disposal timestamp", r.State)
		}
		if !r.AcquiredAt.Before(*r.DisposedAt) {
			return fmt.Errorf("acquisition %s must precede disposal %s",
				r.AcquiredAt.Format(time.RFC3339), r.DisposedAt.Format(time.RFC3339))
		}
	}
	return nil
}
