// Package main provides the flowgovernor control plane entry point.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/flowgovernor/internal/config"
	"github.com/R3E-Network/flowgovernor/internal/controlplane"
)

func main() {
	log := logrus.WithField("app", "flowgovernor")

	cfg, err := config.Load(os.Getenv("FLOWGOVERNOR_CONFIG_PATH"))
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	registry := prometheus.NewRegistry()
	cp := controlplane.New(cfg, nil, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := cp.Run(ctx); err != nil {
			log.WithError(err).Error("control plane stopped")
		}
	}()

	addr := os.Getenv("FLOWGOVERNOR_HTTP_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           cp.PrometheusHandler(registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("serving metrics and dashboard")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := cp.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("control plane shutdown error")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown error")
	}
}
