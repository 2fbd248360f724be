// Package routes wires the distribution origin's HTTP endpoints.
package routes

import (
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/handler"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
)

// SetupRoutes wires all HTTP endpoints of the origin server.
func SetupRoutes(st store.ObjectStore) http.Handler {
	srv := handler.New(st)

	mux := http.NewServeMux()
	mux.Handle("/distribution/daily/", http.HandlerFunc(srv.Distribution))
	mux.Handle("/distribution/two-hourly/", http.HandlerFunc(srv.Distribution))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	chain := alice.New(logRequest)
	return chain.Then(mux)
}

// logRequest logs basic request information.
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("request")
	})
}
