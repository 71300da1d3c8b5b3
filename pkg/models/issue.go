package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// IssueNumber is a logical issue number. Most are plain integers ("12") but
// annuals and interstitial issues use fractional numbers ("1.5"), so the raw
// string is kept for display and compared numerically for ordering.
type IssueNumber string

// Value parses the issue number as a decimal. "1.5" sorts between "1" and "2".
func (n IssueNumber) Value() (float64, error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, fmt.Errorf("empty issue number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("issue number %q: %w", s, err)
	}
	return v, nil
}

// Less orders issue numbers numerically. Unparseable numbers sort after
// parseable ones, then lexically, so ordering stays deterministic.
func (n IssueNumber) Less(other IssueNumber) bool {
	a, errA := n.Value()
	b, errB := other.Value()
	switch {
	case errA == nil && errB == nil:
		if a != b {
			return a < b
		}
		return n < other
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return n < other
	}
}

// SortIssueNumbers sorts a slice of issue numbers in ascending numeric order.
func SortIssueNumbers(nums []IssueNumber) {
	sort.Slice(nums, func(i, j int) bool { return nums[i].Less(nums[j]) })
}

// Issue is one logical issue of a series volume. (SeriesKey, Volume, Number)
// is the unique key; editions hang off the issue and never exist without it.
type Issue struct {
	SeriesKey string      `json:"series_key"`
	Volume    int         `json:"volume"`
	Number    IssueNumber `json:"number"`
	PubDate   time.Time   `json:"pub_date,omitempty"`
	Editions  []*Edition  `json:"editions,omitempty"`
}

// Key returns the unique issue key within the graph.
func (i *Issue) Key() IssueKey {
	return IssueKey{SeriesKey: i.SeriesKey, Volume: i.Volume, Number: i.Number}
}

// EditionFor returns the issue's edition for the given line, or nil.
func (i *Issue) EditionFor(line string) *Edition {
	for _, e := range i.Editions {
		if e.Line == line {
			return e
		}
	}
	return nil
}

// Clone returns a deep copy of the issue and its editions.
func (i *Issue) Clone() *Issue {
	out := *i
	if i.Editions != nil {
		out.Editions = make([]*Edition, len(i.Editions))
		for n, e := range i.Editions {
			out.Editions[n] = e.Clone()
		}
	}
	return &out
}

// IssueKey identifies one issue. Comparable, usable as a map key.
type IssueKey struct {
	SeriesKey string      `json:"series_key"`
	Volume    int         `json:"volume"`
	Number    IssueNumber `json:"number"`
}

func (k IssueKey) String() string {
	return fmt.Sprintf("%s/v%d/%s", k.SeriesKey, k.Volume, k.Number)
}
