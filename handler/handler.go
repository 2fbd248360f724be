// Package handler serves published export archives over HTTP. This is the
// origin the CDN fronts; it only ever reads from distribution storage.
package handler

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/export"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/period"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
)

type Server struct {
	store store.ObjectStore
	log   *logrus.Entry
}

// New returns a ready Server instance.
func New(st store.ObjectStore) *Server {
	return &Server{store: st, log: logrus.WithField("component", "distribution-handler")}
}

// Distribution serves GET /distribution/{daily|two-hourly}/<stamp>.zip.
// Paths that do not parse back to a valid period are 404, never looked up.
func (s *Server) Distribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/")
	if _, ok := period.Parse(key); !ok {
		http.NotFound(w, r)
		return
	}
	body, meta, err := s.store.Get(r.Context(), key)
	if store.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.WithField("key", key).WithError(err).Error("fetch archive")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	if sig := meta[export.MetadataSignature]; sig != "" {
		w.Header().Set("X-Amz-Meta-Signature", sig)
	}
	if date := meta[export.MetadataSignatureDate]; date != "" {
		w.Header().Set("X-Amz-Meta-Signature-Date", date)
	}
	w.Write(body)
}
