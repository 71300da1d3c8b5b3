package models

// Series is a logical comic series. A series may have been rebooted one or
// more times; each reboot is a separate volume and issue numbers restart
// inside it, so issues are keyed by (SeriesKey, Volume, IssueNumber).
type Series struct {
	Key     string   `json:"key"`     // canonical key (slug)
	Name    string   `json:"name"`    // display name
	Volumes []int    `json:"volumes"` // known volume numbers, ascending
	Issues  []*Issue `json:"issues,omitempty"`
}

// HasVolume reports whether the series already knows about a volume number.
func (s *Series) HasVolume(vol int) bool {
	for _, v := range s.Volumes {
		if v == vol {
			return true
		}
	}
	return false
}
