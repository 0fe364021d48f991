package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/config"
	"github.com/amankumarsingh77/render-worker/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	maxHeaderBytes = 1 << 20
	ctxTimeout     = 5
	readTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
)

// StatusProvider reports what the worker loop is doing.
type StatusProvider interface {
	State() string
	CurrentJob() string
}

// Server exposes the worker's health and metrics endpoints.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	status StatusProvider
	logger logger.Logger
}

func NewServer(cfg *config.Config, status StatusProvider, logger logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return &Server{
		echo:   e,
		cfg:    cfg,
		status: status,
		logger: logger,
	}
}

// Start serves in the background. Listen errors after startup are logged.
func (s *Server) Start() error {
	if err := s.MapHandlers(s.echo); err != nil {
		return err
	}
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.Recover())

	server := &http.Server{
		Addr:           s.cfg.Server.Port,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}
	go func() {
		s.logger.Infof("health server listening on %s", s.cfg.Server.Port)
		if err := s.echo.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("error starting server: %v", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*ctxTimeout)
	defer cancel()
	s.logger.Infof("shutting down server")
	return s.echo.Shutdown(ctx)
}
