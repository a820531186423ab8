package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/livescore/go/internal/httpapi"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	opts := httpapi.Options{
		Admin:          services.Engine,
		Upgrader:       services.Hub,
		Metrics:        services.Metrics.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
	}
	// A typed nil *auth.JWT would make the API demand tokens nobody can mint.
	if services.Auth != nil {
		opts.Auth = services.Auth
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           httpapi.NewHandler(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
