// Package api serves a read-only HTTP view of the ledger.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/observability"
)

// Reader is the slice of the ledger engine the API reads from.
type Reader interface {
	Now() uint64
	Vault() domain.Address
	GetSettings(ctx context.Context) (*domain.Settings, error)
	GetEmergencyWithdrawal(ctx context.Context) (*domain.EmergencyWithdrawal, error)

	GetAllCampaigns(ctx context.Context) ([]domain.CampaignID, error)
	GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error)
	GetCampaignMetrics(ctx context.Context, id domain.CampaignID) (*domain.CampaignMetrics, error)
	IsCampaignCompleted(ctx context.Context, id domain.CampaignID) (bool, error)
	GetContribution(ctx context.Context, id domain.CampaignID, contributor domain.Address) (domain.Amount, error)

	GetPool(ctx context.Context, poolID uint64) (*domain.Pool, error)
	GetPoolState(ctx context.Context, poolID uint64) (domain.PoolState, error)
	GetPoolMetadata(ctx context.Context, poolID uint64) (*domain.PoolMetadata, error)
	GetPoolMetrics(ctx context.Context, poolID uint64) (*domain.PoolMetrics, error)
	GetPoolContribution(ctx context.Context, poolID uint64, contributor domain.Address) (*domain.PoolContribution, error)
	GetMultiSigConfig(ctx context.Context, poolID uint64) (*domain.MultiSigConfig, error)
}

// Server routes HTTP requests to ledger reads.
type Server struct {
	ledger Reader
	events events.Querier
	stream http.Handler
	logger *zap.Logger
	router *gin.Engine
}

// Option configures Server.
type Option func(*Server)

// WithEventLog serves GET /v1/events from q.
func WithEventLog(q events.Querier) Option {
	return func(s *Server) {
		s.events = q
	}
}

// WithEventStream serves the websocket stream at /v1/events/ws.
func WithEventStream(h http.Handler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server over r.
func New(r Reader, opts ...Option) *Server {
	s := &Server{
		ledger: r,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/settings", s.getSettings)
		v1.GET("/emergency", s.getEmergency)

		v1.GET("/campaigns", s.listCampaigns)
		v1.GET("/campaigns/:id", s.getCampaign)
		v1.GET("/campaigns/:id/metrics", s.getCampaignMetrics)
		v1.GET("/campaigns/:id/contributions/:address", s.getContribution)

		v1.GET("/pools/:id", s.getPool)
		v1.GET("/pools/:id/metadata", s.getPoolMetadata)
		v1.GET("/pools/:id/metrics", s.getPoolMetrics)
		v1.GET("/pools/:id/multisig", s.getMultiSig)
		v1.GET("/pools/:id/contributions/:address", s.getPoolContribution)

		if s.events != nil {
			v1.GET("/events", s.listEvents)
		}
		if s.stream != nil {
			v1.GET("/events/ws", gin.WrapH(s.stream))
		}
	}
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	}
}
