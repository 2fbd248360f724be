// Package common provides shared wiring helpers for the job and server
// binaries: storage backend construction, signer loading and submission
// scoping.
package common

import (
	"fmt"
	"strings"

	"github.com/andres-erbsen/clock"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/config"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/federation"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store/localfs"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store/memory"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/submission"
)

// BuildObjectStore constructs the configured storage backend.
func BuildObjectStore(cfg *config.Config, clk clock.Clock) (store.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "localfs":
		return localfs.New(cfg.Storage.Root)
	case "memory":
		return memory.New(clk), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// BuildSigner loads the configured signing key.
func BuildSigner(cfg *config.Config) (signing.Signer, error) {
	key, err := signing.LoadPrivateKey(cfg.Signing.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return signing.NewECDSASigner(cfg.Signing.KeyID, key)
}

// ExportPredicate scopes export loads to the configured submission prefix
// plus the federation inbound area, so downloaded keys flow into exports.
func ExportPredicate(cfg *config.Config) submission.KeyPredicate {
	prefix := cfg.Distribution.SubmissionPrefix
	return func(key string) bool {
		if strings.HasPrefix(key, federation.InboundPrefix) {
			return true
		}
		return prefix == "" || strings.HasPrefix(key, prefix)
	}
}

// UploadPredicate scopes upload loads to locally submitted objects only.
// Keys that arrived through federation are never echoed back to the gateway.
func UploadPredicate(cfg *config.Config) submission.KeyPredicate {
	prefix := cfg.Distribution.SubmissionPrefix
	return func(key string) bool {
		if strings.HasPrefix(key, federation.InboundPrefix) {
			return false
		}
		return prefix == "" || strings.HasPrefix(key, prefix)
	}
}
