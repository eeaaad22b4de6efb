// Copyright 2024-2025 Logz.io
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package status exposes the optional HTTP side server with the health and
// Prometheus metrics endpoints.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/config"
)

// NewRouter builds the status routes.
func NewRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Status.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// Health endpoint
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Serve runs the status server until the context is canceled. Server errors
// are logged, never fatal: the collector keeps running without its status
// endpoints.
func Serve(ctx context.Context, cfg *config.Config) {
	server := &http.Server{
		Addr:    cfg.Status.Addr,
		Handler: NewRouter(cfg),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Status server shutdown failed: %s", err)
		}
	}()

	zlog.Info().Msgf("Status server listening on %s", cfg.Status.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Error().Msgf("Status server failed: %s", err)
	}
}
