package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"livescore/internal/livescore/hub"
	"livescore/internal/livescore/model"
	"livescore/internal/livescore/monitor"
	"livescore/internal/livescore/reconciler"
	"livescore/internal/middleware/logger"
)

const (
	defaultLiveLimit = 100
	maxUpcomingDays  = 30
)

// TaskRunner runs a registered crawl task on demand.
type TaskRunner interface {
	Trigger(ctx context.Context, name string) (string, error)
}

type Server struct {
	Log     *zap.Logger
	Matches *reconciler.Service
	Hub     *hub.Hub
	Monitor *monitor.JobMonitor
	Tasks   TaskRunner
	PProf   bool
	// OriginPatterns lists extra hosts allowed to open /ws from a browser.
	OriginPatterns []string
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(logger.GinLogger(s.Log), gin.Recovery())
	if s.PProf {
		pprof.Register(r)
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	m := r.Group("/matches")
	m.GET("/live", s.liveMatches)
	m.GET("/today", s.todayMatches)
	m.GET("/upcoming", s.upcomingMatches) // ?days=7
	m.GET("/:id", s.getMatch)
	m.GET("/:id/events", s.matchEvents)
	m.GET("/:id/stats", s.matchStats)

	r.GET("/ws", s.serveWS)
	r.GET("/ws/channels", s.wsChannels)

	cr := r.Group("/crawler")
	cr.GET("/health", s.crawlerHealth)
	cr.GET("/jobs", s.crawlerJobs)   // ?limit=50
	cr.GET("/stats", s.crawlerStats) // ?hours=24
	cr.POST("/tasks/:name/run", s.runTask)
	return r
}

func (s *Server) liveMatches(c *gin.Context) {
	out, err := s.Matches.Live(c, defaultLiveLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "total": len(out)})
}

func (s *Server) todayMatches(c *gin.Context) {
	out, err := s.Matches.Today(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "total": len(out)})
}

func (s *Server) upcomingMatches(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days <= 0 || days > maxUpcomingDays {
		days = 7
	}
	out, err := s.Matches.Upcoming(c, days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "total": len(out), "days": days})
}

func (s *Server) getMatch(c *gin.Context) {
	m, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (s *Server) matchEvents(c *gin.Context) {
	m, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": m.EntityID(), "events": m.Events, "total": len(m.Events)})
}

func (s *Server) matchStats(c *gin.Context) {
	m, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": m.EntityID(), "statistics": m.Statistics, "score": m.Score})
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: s.OriginPatterns})
	if err != nil {
		// Accept 已经写回了错误响应
		s.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	if err := s.Hub.Serve(c.Request.Context(), conn); err != nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) wsChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.Hub.Channels(), "sessions": s.Hub.SessionCount()})
}

func (s *Server) crawlerHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.Monitor.Health())
}

func (s *Server) crawlerJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = monitor.DefaultRecentJobs
	}
	jobs, err := s.Monitor.RecentJobs(c, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs, "total": len(jobs)})
}

func (s *Server) crawlerStats(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	stats, err := s.Monitor.Statistics(c, hours)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) runTask(c *gin.Context) {
	if s.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler disabled"})
		return
	}
	jobID, err := s.Tasks.Trigger(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID})
}

func (s *Server) lookup(c *gin.Context) (*model.MatchSnapshot, bool) {
	id := c.Param("id")
	m, err := s.Matches.Get(c, id)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found", "id": id})
		return nil, false
	}
	return m, true
}

func (s *Server) fail(c *gin.Context, err error) {
	s.Log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
