// Package api implements the HTTP and websocket surface of the faucet
// claim-settlement core.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cw-faucet/faucetd/dispenser"
	"github.com/cw-faucet/faucetd/hub"
	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/status"
	stg "github.com/cw-faucet/faucetd/storage"
)

// queueStatusCacheTTL is how long the aggregated queue snapshot is cached.
const queueStatusCacheTTL = 10 * time.Second

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host     string
	Port     int
	Storage  *stg.Storage
	Pipeline *dispenser.Pipeline
	Hub      *hub.Hub
	Board    *status.Board
}

// API type represents the faucet API HTTP server.
type API struct {
	router    *chi.Mux
	storage   *stg.Storage
	pipeline  *dispenser.Pipeline
	hub       *hub.Hub
	board     *status.Board
	queueStat *expirable.LRU[string, *QueueStatusResponse]
	parentCtx context.Context
}

// New creates a new API instance with the given configuration and starts the
// HTTP server in the background.
func New(ctx context.Context, conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil || conf.Pipeline == nil || conf.Hub == nil {
		return nil, fmt.Errorf("missing API collaborator")
	}

	a := &API{
		storage:   conf.Storage,
		pipeline:  conf.Pipeline,
		hub:       conf.Hub,
		board:     conf.Board,
		queueStat: expirable.NewLRU[string, *QueueStatusResponse](1, nil, queueStatusCacheTTL),
		parentCtx: ctx,
	}

	a.initRouter()

	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes.
func (a *API) Router() *chi.Mux {
	return a.router
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))

	a.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(45 * time.Second))

		log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
		r.Get(PingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
			httpWriteOK(w)
		})

		log.Infow("register handler", "endpoint", ClaimRewardEndpoint, "method", "POST")
		r.Post(ClaimRewardEndpoint, a.claimReward)

		log.Infow("register handler", "endpoint", SessionStatusEndpoint, "method", "GET")
		r.Get(SessionStatusEndpoint, a.sessionStatus)

		log.Infow("register handler", "endpoint", QueueStatusEndpoint, "method", "GET")
		r.Get(QueueStatusEndpoint, a.queueStatus)
	})

	// The websocket endpoint stays outside the request timeout; a
	// subscriber lives until its claim confirms.
	log.Infow("register handler", "endpoint", ClaimWsEndpoint, "method", "GET")
	a.router.Get(ClaimWsEndpoint, a.claimWs)
}
