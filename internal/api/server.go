package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"comicshelf/internal/auth"
	"comicshelf/internal/collection"
	"comicshelf/internal/events"
	"comicshelf/internal/syncer"
)

// Server wires the HTTP surface over the in-memory graph and the sync
// pipeline. DB is only used for readiness checks; all reads go through
// the graph.
type Server struct {
	Graph  *collection.Graph
	Syncer *syncer.Syncer
	Auth   *auth.Handler
	Tokens auth.TokenService
	Hub    *events.Hub
	DB     *sql.DB
	Log    *log.Logger
}

func NewServer(graph *collection.Graph, sy *syncer.Syncer, authH *auth.Handler, hub *events.Hub, db *sql.DB, logger *log.Logger) *Server {
	return &Server{
		Graph:  graph,
		Syncer: sy,
		Auth:   authH,
		Tokens: authH.Tokens,
		Hub:    hub,
		DB:     db,
		Log:    logger,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/readyz", s.ready)
	r.GET("/ws", events.WSHandler(s.Hub, s.Log))

	s.Auth.RegisterRoutes(r.Group("/auth"))

	v1 := r.Group("/api/v1", auth.AuthMiddleware(s.Tokens))
	{
		v1.GET("/series", s.listSeries)
		v1.GET("/series/:key", s.getSeries)
		v1.GET("/series/:key/issues", s.listIssues)
		v1.GET("/series/:key/completeness", s.completeness)
		v1.POST("/series/:key/sync", s.syncSeries)
		v1.POST("/series/:key/issues/:number/refresh", s.refreshIssue)
		v1.GET("/ownership", s.listOwnership)
		v1.PUT("/ownership", s.putOwnership)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if s.DB != nil {
		if err := s.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ws":     s.Hub.Stats(),
	})
}

func mustClaims(c *gin.Context) *auth.Claims {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return claims
}

// parseInt parses a non-negative integer query value, falling back to def on
// anything empty, malformed or negative.
func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
