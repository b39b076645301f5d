package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"AegisVault/internal/auth"
	"AegisVault/internal/pricefeed"
	"AegisVault/internal/recorder"
	"AegisVault/internal/vault"
)

// Ledger is the custody side the faucet and account views use.
type Ledger interface {
	Credit(addr common.Address, amount sdkmath.Int) error
	BalanceOf(addr common.Address) sdkmath.Int
}

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Vault          *vault.Vault
	Custody        Ledger
	Journal        recorder.Recorder
	Valuer         *pricefeed.Valuer
	Metrics        http.Handler
	JWT            auth.JWT
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type Server struct {
	deps   Deps
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Journal == nil {
		deps.Journal = recorder.NewNoopRecorder()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Minute
	}
	s := &Server{deps: deps, logger: deps.Logger}
	s.engine = s.routes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := r.Group("/v1", auth.Middleware(s.deps.JWT))
	v1.GET("/vault", s.getVault)
	v1.GET("/accounts/:address", s.getAccount)
	v1.POST("/deposit", s.deposit)
	v1.POST("/withdraw", s.withdraw)

	v1.POST("/insights", s.requestInsight)
	v1.GET("/insights/requests/:id", s.requestStatus)
	v1.POST("/insights/requests/:id/expire", s.expireRequest)
	v1.POST("/oracle/callback", auth.RequireRole(auth.RoleOracle), s.oracleCallback)

	v1.GET("/models", s.listModels)
	v1.GET("/models/active", s.activeModel)
	v1.POST("/models", s.addModel)

	v1.GET("/upkeep", s.getUpkeep)
	v1.POST("/upkeep/perform", s.performUpkeep)
	v1.PUT("/upkeep/interval", s.setInterval)
	v1.PUT("/upkeep/min-tvl", s.setMinTVL)

	admin := v1.Group("/admin")
	admin.POST("/pause", s.pause)
	admin.POST("/resume", s.resume)
	admin.POST("/owner", s.transferOwnership)
	admin.POST("/credit", s.credit)

	v1.GET("/observations", s.observations)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("api: request", fields...)
			return
		}
		s.logger.Debug("api: request", fields...)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api: listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
