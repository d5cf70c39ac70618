package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/tanweijie/splitbot/internal/bill"
	"github.com/tanweijie/splitbot/internal/config"
)

// API is a small read-only status surface next to the bot: liveness plus
// aggregate session counts. It exposes no per-chat data.
type API struct {
	router *mux.Router
	bills  *bill.Service
	config *config.Config
}

func New(cfg *config.Config, bills *bill.Service) *API {
	api := &API{
		router: mux.NewRouter(),
		bills:  bills,
		config: cfg,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/", a.handleIndex).Methods("GET")
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	a.router.HandleFunc("/api/stats", a.handleStats).Methods("GET")
}

func (a *API) Start() error {
	corsOptions := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}

	handler := cors.New(corsOptions).Handler(a.router)

	log.Infof("status API listening on http://%s", a.config.WebBind)
	return http.ListenAndServe(a.config.WebBind, handler)
}
