// Package store defines the object-storage abstraction used for raw
// submissions and distributed export archives.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent, including when
	// an object was deleted between List and Get.
	ErrNotFound = errors.New("store: not found")
)

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// Metadata is attached to an object on Put and returned with Get.
// Distribution archives carry their signature here.
type Metadata map[string]string

// ObjectStore is a minimal object-storage interface.
//
// Contract:
// - Put overwrites an existing object and replaces its metadata.
// - Get MUST return ErrNotFound when the key is absent.
// - List returns all objects whose key starts with prefix, in no particular order.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, Metadata, error)
	Put(ctx context.Context, key string, body []byte, meta Metadata) error
	Delete(ctx context.Context, key string) error
}
