package web

import (
	"bptrack/models"
	"bptrack/web/api"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// NewServer creates and configures the RWeb server exposing the sync
// layer's caller-facing surface.
func NewServer(manager *models.OfflineStorageManager) *rweb.Server {
	s := rweb.NewServer(rweb.ServerOptions{
		Address: ":8000",
		Verbose: true,
	})

	s.Use(rweb.RequestInfo)
	s.Use(CorsMiddleware)
	s.Use(LoggingMiddleware)

	api.Init(manager)
	setupRoutes(s, manager)

	return s
}

// Run starts the server.
func Run(s *rweb.Server) error {
	logger.Info("BPTrack sync server starting", "address", ":8000")
	return s.Run()
}
