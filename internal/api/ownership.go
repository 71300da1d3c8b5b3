package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"comicshelf/internal/events"
	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

type ownershipReq struct {
	SeriesKey  string     `json:"series_key"`
	Volume     int        `json:"volume"`
	Number     string     `json:"number"`
	Line       string     `json:"line"`
	State      string     `json:"state"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	DisposedAt *time.Time `json:"disposed_at,omitempty"`
}

func (s *Server) putOwnership(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}

	var req ownershipReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req.SeriesKey = strings.TrimSpace(req.SeriesKey)
	req.Number = strings.TrimSpace(req.Number)
	if req.SeriesKey == "" || req.Number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "series_key and number required"})
		return
	}
	if req.Volume <= 0 {
		req.Volume = 1
	}
	if req.Line == "" {
		req.Line = models.LineOriginal
	}

	state := models.NormalizeState(req.State)
	if state == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "state must be one of: wishlist, owned, read, sold, traded",
		})
		return
	}

	rec := &models.OwnershipRecord{
		UserID: claims.UserID,
		IssueKey: models.IssueKey{
			SeriesKey: req.SeriesKey,
			Volume:    req.Volume,
			Number:    models.IssueNumber(req.Number),
		},
		Line:       req.Line,
		State:      state,
		AcquiredAt: req.AcquiredAt,
		DisposedAt: req.DisposedAt,
	}

	if err := s.Graph.SetOwnership(rec); err != nil {
		switch {
		case errors.Is(err, shared.ErrIssueNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
		case errors.Is(err, shared.ErrInvalidTransition):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		}
		return
	}

	if err := s.Syncer.Flush(c.Request.Context()); err != nil {
		s.Log.Error("ownership persist failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	if s.Hub != nil {
		go s.Hub.BroadcastJSON(events.NewOwnershipChanged(*rec))
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listOwnership(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}

	seriesKey := strings.TrimSpace(c.Query("series_key"))
	if seriesKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "series_key required"})
		return
	}

	state := strings.TrimSpace(c.Query("state"))
	if state != "" {
		state = models.NormalizeState(state)
		if state == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state filter"})
			return
		}
	}
	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	records := s.Graph.OwnershipOf(claims.UserID, seriesKey)
	if state != "" {
		filtered := records[:0:0]
		for _, r := range records {
			if r.State == state {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].IssueKey != records[j].IssueKey {
			return records[i].IssueKey.String() < records[j].IssueKey.String()
		}
		return records[i].Line < records[j].Line
	})

	total := len(records)
	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  records,
	})
}
