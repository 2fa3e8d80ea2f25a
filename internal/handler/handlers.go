// Package handler exposes the agent's read-only debug endpoint: the latest
// encoded metric of every collector and a storage liveness probe.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hostmetry/agent/internal/collector"
	apperrors "github.com/hostmetry/agent/internal/errors"
	middlewareinternal "github.com/hostmetry/agent/internal/middleware"
	"github.com/hostmetry/agent/internal/repository"
)

func Router(
	collectors []collector.Collector,
	storage repository.Repository,
	logger *zap.SugaredLogger,
) chi.Router {
	router := chi.NewRouter()
	router.Use(middlewareinternal.LoggingMiddleware(logger))
	router.Use(middlewareinternal.GzipMiddleware)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(15 * time.Second))

	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		PingStorageHandler(w, r, storage, logger)
	})
	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		ListMetricsHandler(w, r, collectors)
	})
	router.Get("/metrics/{source}", func(w http.ResponseWriter, r *http.Request) {
		GetMetricHandler(w, r, collectors, logger)
	})
	return router
}

// ListMetricsHandler returns the names of all registered collectors.
func ListMetricsHandler(w http.ResponseWriter, r *http.Request, collectors []collector.Collector) {
	names := make([]string, 0, len(collectors))
	for _, c := range collectors {
		names = append(names, c.Name())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}

// GetMetricHandler returns the latest encoded metric of one collector. A
// collector that has not computed a metric yet answers 204 No Content.
func GetMetricHandler(w http.ResponseWriter, r *http.Request, collectors []collector.Collector, logger *zap.SugaredLogger) {
	source := chi.URLParam(r, "source")
	for _, c := range collectors {
		if c.Name() != source {
			continue
		}
		document, err := c.Encode()
		if err != nil {
			if errors.Is(err, apperrors.ErrNoRecord) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			logger.Warnf("failed to encode %s metric: %v", source, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(document))
		return
	}
	http.Error(w, "unknown source", http.StatusNotFound)
}

// PingStorageHandler probes the storage connection.
func PingStorageHandler(w http.ResponseWriter, r *http.Request, storage repository.Repository, logger *zap.SugaredLogger) {
	if err := storage.Ping(r.Context()); err != nil {
		logger.Warnf("storage ping failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
