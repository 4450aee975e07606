package route

import (
	"net/http"

	"docdetect/internal/config"
	"docdetect/internal/handler"
	"docdetect/internal/logger"
	"docdetect/internal/middleware"
	"docdetect/internal/repository"
	wshub "docdetect/internal/service/websocket"

	"github.com/gorilla/mux"
)

// Dependencies are the services the HTTP surface reads from. Repo and Hub may be nil.
type Dependencies struct {
	Status handler.StatusProvider
	Hub    *wshub.HubService
	Repo   repository.CaptureRepository
}

// SetupRoutes registers the preview, status, capture and log endpoints and
// wraps the router with logging and optional token authentication.
func SetupRoutes(cfg *config.Config, deps Dependencies, logger *logger.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger), middleware.AuthMiddleware(cfg.APIToken))

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", handler.StatusHandler(deps.Status, logger)).Methods(http.MethodGet)

	if deps.Hub != nil {
		api.HandleFunc("/preview", handler.ViewWebsocketHandler(deps.Hub, logger))
	}

	if deps.Repo != nil {
		api.HandleFunc("/captures", handler.GetCapturesHandler(deps.Repo, logger)).Methods(http.MethodGet)
		api.HandleFunc("/captures", handler.PruneCapturesHandler(deps.Repo, logger)).Methods(http.MethodDelete)
		api.HandleFunc("/captures/{id}", handler.ViewCaptureHandler(deps.Repo, logger)).Methods(http.MethodGet)
	}

	// Log endpoints
	router.HandleFunc("/logs/{level}", handler.ShowLogsHandler(logger)).Methods(http.MethodGet)
	router.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(logger)).Methods(http.MethodPost)

	return router
}
