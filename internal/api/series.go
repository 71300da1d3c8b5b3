package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

type seriesSummary struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Volumes []int  `json:"volumes"`
	Issues  int    `json:"issues"`
}

func (s *Server) listSeries(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	keys := s.Graph.SeriesKeys()
	sort.Strings(keys)
	total := len(keys)

	if offset > len(keys) {
		offset = len(keys)
	}
	keys = keys[offset:]
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	items := make([]seriesSummary, 0, len(keys))
	for _, key := range keys {
		sr, ok := s.Graph.Series(key)
		if !ok {
			continue
		}
		items = append(items, seriesSummary{
			Key:     sr.Key,
			Name:    sr.Name,
			Volumes: sr.Volumes,
			Issues:  len(sr.Issues),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (s *Server) getSeries(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	sr, ok := s.Graph.Series(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not found"})
		return
	}
	c.JSON(http.StatusOK, seriesSummary{
		Key:     sr.Key,
		Name:    sr.Name,
		Volumes: sr.Volumes,
		Issues:  len(sr.Issues),
	})
}

func (s *Server) listIssues(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if _, ok := s.Graph.Series(key); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not found"})
		return
	}

	volume := parseInt(c.Query("volume"), 0)
	line := strings.TrimSpace(c.Query("line"))

	issues := s.Graph.IssuesOf(key, volume)
	if line != "" {
		filtered := issues[:0:0]
		for _, it := range issues {
			if it.EditionFor(line) != nil {
				filtered = append(filtered, it)
			}
		}
		issues = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"total": len(issues),
		"items": issues,
	})
}

func (s *Server) completeness(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}

	key := strings.TrimSpace(c.Param("key"))
	volume := parseInt(c.Query("volume"), 0)
	line := strings.TrimSpace(c.Query("line"))
	if line == "" {
		line = models.LineOriginal
	}

	report, err := s.Graph.Completeness(claims.UserID, key, volume, line)
	if err != nil {
		if errors.Is(err, shared.ErrSeriesNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "series not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "completeness failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
