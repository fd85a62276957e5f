// Package server exposes the search service over HTTP: the search page,
// POST /search and GET /progress.
package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/searchgpt/internal/client"
	"github.com/hyperifyio/searchgpt/internal/frontend"
	"github.com/hyperifyio/searchgpt/internal/searchgpt"
)

//go:embed static
var static embed.FS

// Searcher runs one search. *searchgpt.Service implements it.
type Searcher interface {
	Search(ctx context.Context, requestID, query string, o searchgpt.Overrides) (searchgpt.Answer, error)
}

// ProgressSource renders the progress fragment for a request id.
type ProgressSource interface {
	HTML(requestID string) string
}

// Options tunes the page defaults.
type Options struct {
	DefaultProvider string
	DefaultModel    string
	Version         string
}

// Server wires the handlers onto a gin engine.
type Server struct {
	Engine   *gin.Engine
	Searcher Searcher
	Progress ProgressSource
	Options  Options
}

// New builds a server with logging and recovery middleware.
func New(searcher Searcher, progress ProgressSource, opt Options) *Server {
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())
	s := &Server{Engine: engine, Searcher: searcher, Progress: progress, Options: opt}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Engine.SetHTMLTemplate(template.Must(template.ParseFS(static, "static/index.html")))
	s.Engine.StaticFileFS("/static/index.js", "static/index.js", http.FS(static))
	s.Engine.GET("/", s.index)
	s.Engine.POST("/search", s.search)
	s.Engine.GET("/progress", s.progress)
	s.Engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
}

// ServeHTTP lets Server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"RequestID": uuid.NewString(),
		"Provider":  s.Options.DefaultProvider,
		"Model":     s.Options.DefaultModel,
		"Version":   s.Options.Version,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) search(c *gin.Context) {
	requestID := strings.TrimSpace(c.PostForm("request_id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	overrides := searchgpt.Overrides{
		SubscriptionKey: c.GetHeader(client.HeaderSubscriptionKey),
		LLMAPIKey:       c.GetHeader(client.HeaderAPIKey),
		UseSource:       c.PostForm("is_use_source"),
		Provider:        c.PostForm("llm_service_provider"),
		Model:           c.PostForm("llm_model"),
	}
	ans, err := s.Searcher.Search(c.Request.Context(), requestID, c.PostForm("q"), overrides)
	if err != nil {
		status := http.StatusInternalServerError
		if searchgpt.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Str("request_id", requestID).Int("status", status).Msg("search failed")
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, client.SearchResponse{
		ID:          frontend.ResultsRegion,
		HTML:        ans.HTML,
		ExplainHTML: ans.ExplainHTML,
	})
}

func (s *Server) progress(c *gin.Context) {
	id := strings.TrimSpace(c.Query("request_id"))
	html := ""
	if id != "" && s.Progress != nil {
		html = s.Progress.HTML(id)
	}
	c.JSON(http.StatusOK, client.ProgressResponse{HTML: html})
}

// requestLogger logs one line per request and echoes X-Request-ID,
// allocating one when the caller sent none.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(client.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(client.HeaderRequestID, id)
		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		} else if c.Request.URL.Path == "/progress" {
			ev = log.Debug()
		}
		ev.Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
