package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core"
	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
	"github.com/agenthands/bioguard/internal/metrics"
	"github.com/agenthands/bioguard/internal/storage/relational"
)

type Server struct {
	Service  *core.Service
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func NewServer(svc *core.Service, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, g prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Service: svc, Config: cfg, Logger: logger, Metrics: m, Gatherer: g}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.Logger, s.Metrics))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.POST("/analyses", RateLimit(s.Config.RateLimit), s.Analyze)
	v1.GET("/users/:id/history", s.History)
	v1.GET("/users/:id/clusters", s.Clusters)
	v1.GET("/records/:id/similar", s.Similar)
	v1.DELETE("/records/:id", s.DeleteRecord)
	v1.GET("/features", s.Features)
	v1.POST("/federated/updates", s.FederatedUpdate)

	return r
}

type ProfileRequest struct {
	Allergies  []string `json:"allergies"`
	Conditions []string `json:"conditions"`
}

// AnalyzeRequest carries either text or base64 image bytes.
type AnalyzeRequest struct {
	UserID   string          `json:"user_id" binding:"required,max=128"`
	Kind     string          `json:"kind" binding:"required,oneof=food document chat"`
	Text     string          `json:"text"`
	Image    []byte          `json:"image_base64"`
	MIMEType string          `json:"mime_type"`
	Profile  *ProfileRequest `json:"profile"`
}

func (s *Server) Analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.bodyLimit())
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large", "limit": tooBig.Limit})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "detail": err.Error()})
		return
	}

	isImageType := strings.HasPrefix(req.MIMEType, "image/")
	content := []byte(req.Text)
	switch {
	case len(req.Image) > 0 && !isImageType:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "detail": "image_base64 requires an image/* mime_type"})
		return
	case len(req.Image) > 0:
		content = req.Image
	case isImageType:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "detail": "mime_type " + req.MIMEType + " requires image_base64"})
		return
	}
	var profile *model.MedicalProfile
	if req.Profile != nil {
		profile = &model.MedicalProfile{Allergies: req.Profile.Allergies, Conditions: req.Profile.Conditions}
	}

	analysis, err := s.Service.Analyze(c.Request.Context(),
		model.NewRequest(req.UserID, model.Kind(req.Kind), content, req.MIMEType, profile))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) History(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	recs, err := s.Service.GetUserHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": nonNil(recs)})
}

func (s *Server) Clusters(c *gin.Context) {
	clusters, err := s.Service.GetClusters(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": nonNil(clusters)})
}

func (s *Server) Similar(c *gin.Context) {
	k, ok := intQuery(c, "k")
	if !ok {
		return
	}
	similar, err := s.Service.GetSimilar(c.Request.Context(), c.Param("id"), k)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"similar": nonNil(similar)})
}

func (s *Server) DeleteRecord(c *gin.Context) {
	if err := s.Service.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Features(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"features":  s.Service.Features(),
		"providers": s.Service.Chain(),
	})
}

type FederatedUpdateRequest struct {
	ClientID     string          `json:"client_id" binding:"required"`
	ModelWeights json.RawMessage `json:"model_weights" binding:"required"`
	Accuracy     float64         `json:"accuracy"`
}

func (s *Server) FederatedUpdate(c *gin.Context) {
	var req FederatedUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "detail": err.Error()})
		return
	}
	id, err := s.Service.SaveFederatedUpdate(c.Request.Context(), req.ClientID, req.ModelWeights, req.Accuracy)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// bodyLimit bounds an analysis request: the base64 form of the largest
// accepted content plus room for the JSON envelope.
func (s *Server) bodyLimit() int64 {
	return int64(base64.StdEncoding.EncodedLen(int(s.Config.MaxContentBytes))) + 64<<10
}

// fail maps service errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	var ve *faults.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, relational.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, core.ErrFeatureDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
