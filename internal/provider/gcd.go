package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

// GCD fetches issue metadata from a Grand Comics Database style API. The
// wire shape is flat and stringly typed, so most normalization happens here.
//
// Example assumed response:
//
//	GET {BaseURL}/issues/{series}/{number}
//	{
//	  "series_slug": "hellboy",
//	  "volume": "2",
//	  "number": "1.5",
//	  "descriptor": "Hellboy: The Corpse",
//	  "publication_date": "1996-03",
//	  "credits": "Mike Mignola; Dave Stewart",
//	  "cover_url": "...",
//	  "variant_of": ""
//	}
type GCD struct {
	BaseURL string
	Client  *http.Client
	TTL     time.Duration
}

// NewGCD creates a GCD client against the given base URL.
func NewGCD(baseURL string) *GCD {
	return &GCD{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		TTL:     15 * time.Minute,
	}
}

func (g *GCD) Name() string { return "gcd" }

func (g *GCD) FetchIssue(ctx context.Context, seriesKey string, number models.IssueNumber) (*models.ProviderRecord, error) {
	u := fmt.Sprintf("%s/issues/%s/%s", g.BaseURL, seriesKey, number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gcd: build request: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: gcd: %v", shared.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: gcd: %v", shared.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: gcd", shared.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: gcd: %s #%s", shared.ErrNotFound, seriesKey, number)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: gcd: status %d", shared.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gcd: status %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		SeriesSlug      string `json:"series_slug"`
		Volume          string `json:"volume"`
		Number          string `json:"number"`
		Descriptor      string `json:"descriptor"`
		PublicationDate string `json:"publication_date"`
		Credits         string `json:"credits"`
		CoverURL        string `json:"cover_url"`
		VariantOf       string `json:"variant_of"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("gcd: decode json: %w", err)
	}

	volume, err := strconv.Atoi(strings.TrimSpace(raw.Volume))
	if err != nil || volume <= 0 {
		volume = 1
	}

	var creators []string
	for _, c := range strings.Split(raw.Credits, ";") {
		if c = strings.TrimSpace(c); c != "" {
			creators = append(creators, c)
		}
	}

	// A variant entry is a reprint-line edition of its parent issue.
	line := models.LineOriginal
	if strings.TrimSpace(raw.VariantOf) != "" {
		line = models.LineReprint
	}

	rec := &models.ProviderRecord{
		Provider:  g.Name(),
		SeriesKey: seriesKey,
		Volume:    volume,
		Number:    models.IssueNumber(strings.TrimSpace(raw.Number)),
		Line:      line,
		Title:     strings.TrimSpace(raw.Descriptor),
		Creators:  creators,
		CoverURL:  raw.CoverURL,
		FetchedAt: time.Now(),
		TTL:       g.TTL,
	}
	if rec.Number == "" {
		rec.Number = number
	}
	// GCD publication dates are often year-month only.
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if d, perr := time.Parse(layout, strings.TrimSpace(raw.PublicationDate)); perr == nil {
			rec.CoverDate = d
			break
		}
	}
	return rec, nil
}
