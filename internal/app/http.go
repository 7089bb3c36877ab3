package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"leadboard/api/internal/logger"
	"leadboard/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger.OrNop(log)}
}

func (s *HTTPServer) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestContext())

	router.GET("/api/health", s.handleHealth)
	router.HEAD("/api/health", s.handleHealth)
	router.GET("/api/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/dashboard", s.handleDashboard)

	api.GET("/signals", s.handleSignals)
	api.POST("/signals/:id/research", s.handlePromoteToResearch)

	api.GET("/companies/:name/news", s.handleCompanyNews)
	api.GET("/companies/:name/prospect", s.handleIsProspect)
	api.POST("/companies/:name/prospect", s.handlePromoteToProspect)

	api.GET("/research-queue", s.handleResearchQueue)
	api.POST("/research-queue/reconcile", s.handleReconcileQueue)
	api.PATCH("/research-queue/:id/status", s.handleSetResearchStatus)
	api.DELETE("/research-queue/:id", s.handleRemoveFromResearch)

	api.GET("/research/:company", s.handleResearchDetail)
	api.POST("/research/:company/prospect", s.handlePromoteGroup)

	api.GET("/prospects", s.handleListProspects)
	api.GET("/prospects/:id", s.handleGetProspect)
	api.PATCH("/prospects/:id/metadata", s.handleUpdateProspectMetadata)
	api.GET("/prospects/:id/leads", s.handleProspectLeads)
	api.PUT("/prospects/:id/leads", s.handleSyncProspectLeads)
	api.PATCH("/prospects/:id/leads/outreach", s.handleUpdateLeadOutreach)

	api.GET("/search", s.handleSearch)

	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	return router
}

// requestContext assigns a request id, sets CORS headers and writes one
// access log line per request.
func (s *HTTPServer) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)

		started := time.Now()
		setCORSHeaders(c.Writer.Header(), s.corsOrigin)
		c.Header("X-Request-ID", requestID)

		c.Next()

		s.logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(started)),
		)
	}
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := gin.H{"database": gin.H{"status": "ok"}}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = gin.H{"status": "error", "error": err.Error()}
	}
	c.JSON(statusCode, gin.H{"ok": status == "ready", "status": status, "checks": checks})
}

func (s *HTTPServer) handleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Dashboard(c.Request.Context()))
}

func (s *HTTPServer) handleSignals(c *gin.Context) {
	signals, err := s.service.SignalsByWindow(c.Request.Context(), c.Query("window"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *HTTPServer) handlePromoteToResearch(c *gin.Context) {
	result, err := s.service.PromoteToResearch(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": result.AllOK(), "steps": result.Steps})
}

func (s *HTTPServer) handleCompanyNews(c *gin.Context) {
	news, err := s.service.NewsByCompany(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": news})
}

func (s *HTTPServer) handleIsProspect(c *gin.Context) {
	exists, err := s.service.IsProspect(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isProspect": exists})
}

// handlePromoteToProspect checks for an existing prospect before inserting,
// since the insert itself is not idempotent.
func (s *HTTPServer) handlePromoteToProspect(c *gin.Context) {
	var body struct {
		LogoURL *string `json:"logo_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	ctx := c.Request.Context()
	name := c.Param("name")

	exists, err := s.service.IsProspect(ctx, name)
	if err != nil {
		s.fail(c, err)
		return
	}
	if exists {
		writeError(c, http.StatusConflict, "ALREADY_PROSPECT", "Company is already a prospect", nil)
		return
	}
	created, err := s.service.PromoteToProspect(ctx, name, body.LogoURL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "prospect": created})
}

func (s *HTTPServer) handleResearchQueue(c *gin.Context) {
	items, err := s.service.ResearchQueue(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *HTTPServer) handleReconcileQueue(c *gin.Context) {
	updated, err := s.service.ReconcileQueue(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (s *HTTPServer) handleSetResearchStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	ok, err := s.service.SetResearchStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (s *HTTPServer) handleRemoveFromResearch(c *gin.Context) {
	ok, err := s.service.RemoveFromResearch(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (s *HTTPServer) handleResearchDetail(c *gin.Context) {
	detail, err := s.service.ResearchDetail(c.Request.Context(), c.Param("company"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *HTTPServer) handlePromoteGroup(c *gin.Context) {
	result, err := s.service.PromoteGroupToProspect(c.Request.Context(), c.Param("company"))
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (s *HTTPServer) handleListProspects(c *gin.Context) {
	items, err := s.service.ListProspects(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prospects": items})
}

func (s *HTTPServer) handleGetProspect(c *gin.Context) {
	item, err := s.service.GetProspect(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *HTTPServer) handleUpdateProspectMetadata(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	ok, err := s.service.UpdateProspectMetadata(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (s *HTTPServer) handleProspectLeads(c *gin.Context) {
	leads, err := s.service.ProspectLeads(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

func (s *HTTPServer) handleSyncProspectLeads(c *gin.Context) {
	var body struct {
		Leads []map[string]any `json:"leads"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	leads, err := s.service.SyncProspectLeads(c.Request.Context(), c.Param("id"), body.Leads)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

func (s *HTTPServer) handleUpdateLeadOutreach(c *gin.Context) {
	var body struct {
		ProfileURL   string          `json:"profile_url"`
		OutreachData json.RawMessage `json:"outreach_data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	ok, err := s.service.UpdateLeadOutreach(c.Request.Context(), c.Param("id"), body.ProfileURL, body.OutreachData)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (s *HTTPServer) handleSearch(c *gin.Context) {
	q := search.Query{
		Text: c.Query("q"),
		Mode: search.Mode(strings.ToLower(c.Query("mode"))),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer", nil)
			return
		}
		q.Limit = limit
	}
	c.JSON(http.StatusOK, s.service.Search(c.Request.Context(), q))
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	writeError(c, status, code, message, details)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	response := gin.H{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.AbortWithStatusJSON(status, response)
}
