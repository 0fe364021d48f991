package server

import (
	"net/http"

	"github.com/amankumarsingh77/render-worker/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status     string `json:"status"`
	WorkerID   string `json:"worker_id"`
	State      string `json:"state"`
	CurrentJob string `json:"current_job,omitempty"`
}

func (s *Server) MapHandlers(e *echo.Echo) error {
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return nil
}

func (s *Server) health(c echo.Context) error {
	s.logger.Debugf("Health check RequestID: %s, from %s", utils.GetRequestID(c), utils.GetIPAddress(c))
	return c.JSON(http.StatusOK, healthResponse{
		Status:     "OK",
		WorkerID:   s.cfg.Worker.ID,
		State:      s.status.State(),
		CurrentJob: s.status.CurrentJob(),
	})
}
