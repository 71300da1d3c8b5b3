package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

// ComicVine fetches issue metadata from a ComicVine-style JSON API.
type ComicVine struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	TTL     time.Duration // freshness TTL stamped on records
}

// NewComicVine creates a ComicVine client against the given base URL.
func NewComicVine(baseURL, apiKey string) *ComicVine {
	return &ComicVine{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 12 * time.Second},
		TTL:     15 * time.Minute,
	}
}

func (c *ComicVine) Name() string { return "comicvine" }

type cvResponse struct {
	StatusCode int    `json:"status_code"` // 1 = OK
	Error      string `json:"error"`
	Results    []struct {
		Name        string `json:"name"`
		IssueNumber string `json:"issue_number"`
		CoverDate   string `json:"cover_date"` // "2006-01-02"
		Volume      struct {
			Name   string `json:"name"`
			Number int    `json:"number"`
		} `json:"volume"`
		PersonCredits []struct {
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"person_credits"`
		Image struct {
			OriginalURL string `json:"original_url"`
		} `json:"image"`
		Reprint bool `json:"reprint"`
	} `json:"results"`
}

// FetchIssue queries /issues filtered by series and issue number and maps the
// first result into a ProviderRecord.
func (c *ComicVine) FetchIssue(ctx context.Context, seriesKey string, number models.IssueNumber) (*models.ProviderRecord, error) {
	u, err := url.Parse(c.BaseURL + "/issues")
	if err != nil {
		return nil, fmt.Errorf("comicvine: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("filter", fmt.Sprintf("series:%s,issue_number:%s", seriesKey, number))
	if c.APIKey != "" {
		q.Set("api_key", c.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("comicvine: build request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: comicvine: %v", shared.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: comicvine: %v", shared.ErrUnavailable, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: comicvine", shared.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: comicvine: %s #%s", shared.ErrNotFound, seriesKey, number)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: comicvine: status %d", shared.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("comicvine: status %d: %s", resp.StatusCode, string(body))
	}

	var cv cvResponse
	if err := json.Unmarshal(body, &cv); err != nil {
		return nil, fmt.Errorf("comicvine: decode: %w", err)
	}
	if cv.StatusCode != 1 {
		return nil, fmt.Errorf("%w: comicvine: api status %d: %s", shared.ErrUnavailable, cv.StatusCode, cv.Error)
	}
	if len(cv.Results) == 0 {
		return nil, fmt.Errorf("%w: comicvine: %s #%s", shared.ErrNotFound, seriesKey, number)
	}

	item := cv.Results[0]

	creators := make([]string, 0, len(item.PersonCredits))
	for _, p := range item.PersonCredits {
		name := strings.TrimSpace(p.Name)
		if name != "" {
			creators = append(creators, name)
		}
	}

	line := models.LineOriginal
	if item.Reprint {
		line = models.LineReprint
	}

	volume := item.Volume.Number
	if volume <= 0 {
		volume = 1
	}

	rec := &models.ProviderRecord{
		Provider:  c.Name(),
		SeriesKey: seriesKey,
		Volume:    volume,
		Number:    models.IssueNumber(strings.TrimSpace(item.IssueNumber)),
		Line:      line,
		Title:     strings.TrimSpace(item.Name),
		Creators:  creators,
		CoverURL:  item.Image.OriginalURL,
		FetchedAt: time.Now(),
		TTL:       c.TTL,
	}
	if rec.Number == "" {
		rec.Number = number
	}
	if d, err := time.Parse("2006-01-02", item.CoverDate); err == nil {
		rec.CoverDate = d
	}
	return rec, nil
}
