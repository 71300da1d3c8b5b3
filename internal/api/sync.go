package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"comicshelf/internal/shared"
	"comicshelf/pkg/models"
)

type syncReq struct {
	Numbers []string `json:"numbers"`
}

// syncSeries fetches the requested issue numbers from every provider and
// reconciles them into the graph. Without an explicit list it re-syncs the
// issues already known for the series.
func (s *Server) syncSeries(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "series key required"})
		return
	}

	var req syncReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	var numbers []models.IssueNumber
	if len(req.Numbers) > 0 {
		for _, n := range req.Numbers {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			numbers = append(numbers, models.IssueNumber(n))
		}
	} else {
		for _, issue := range s.Graph.IssuesOf(key, 0) {
			numbers = append(numbers, issue.Number)
		}
	}
	if len(numbers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue numbers to sync"})
		return
	}

	sum, err := s.Syncer.SyncSeries(c.Request.Context(), key, numbers)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "sync failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// refreshIssue drops cached provider data for one issue and re-fetches it.
func (s *Server) refreshIssue(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	number := models.IssueNumber(strings.TrimSpace(c.Param("number")))
	if key == "" || number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "series key and number required"})
		return
	}

	editions, err := s.Syncer.Refresh(c.Request.Context(), key, number)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found upstream"})
		case errors.Is(err, shared.ErrAllProvidersUnavailable), errors.Is(err, shared.ErrTimeout):
			c.JSON(http.StatusBadGateway, gin.H{"error": "providers unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"editions": editions})
}
