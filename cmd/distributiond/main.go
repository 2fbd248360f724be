// Command distributiond serves published export archives over HTTP. It is
// the origin a CDN fronts in production; clients never talk to it directly.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andres-erbsen/clock"
	log "github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/cmd/common"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/config"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/routes"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the settings file")
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	st, err := common.BuildObjectStore(cfg, clock.New())
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      routes.SetupRoutes(st),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("distribution origin listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown: %v", err)
	}
}
