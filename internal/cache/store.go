package cache

import (
	"context"
	"time"
)

// Namespace names for the two cache pools. The static namespace is versioned
// and rebuilt on every activation; the dynamic namespace holds user-relevant
// API payloads and survives across versions.
const (
	StaticNamespace  = "taqs-static-v1"
	DynamicNamespace = "taqs-data-v1"
)

// Entry is one cached response snapshot, keyed by the exact request URL.
// Entries are only ever written from successful (HTTP 200) responses, so a
// failed fetch can never evict or corrupt a previously cached value.
type Entry struct {
	URL         string    `json:"url"`
	StatusCode  int       `json:"statusCode"`
	ContentType string    `json:"contentType"`
	Body        []byte    `json:"body"`
	CachedAt    time.Time `json:"cachedAt"`
}

// Store is the namespaced key-value abstraction backing the offline cache
// manager. Each key's value is independently consistent; there are no
// transactional multi-key guarantees (last writer to a key wins).
type Store interface {
	// Get returns the entry for key in namespace, with ok=false on a miss.
	Get(ctx context.Context, namespace, key string) (Entry, bool, error)
	// Put stores the entry under key, creating the namespace if needed.
	Put(ctx context.Context, namespace, key string, e Entry) error
	// Keys lists all keys currently stored in the namespace.
	Keys(ctx context.Context, namespace string) ([]string, error)
	// Namespaces lists every namespace that currently exists.
	Namespaces(ctx context.Context) ([]string, error)
	// DeleteNamespace removes a namespace and everything in it.
	DeleteNamespace(ctx context.Context, namespace string) error
}
