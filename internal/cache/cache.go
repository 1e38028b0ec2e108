// Package cache keeps short-lived copies of list responses so that paging
// back and forth does not refetch. Entries are keyed per bearer token.
package cache

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Staleness windows for list responses.
const (
	StaffTTL    = 15 * time.Second // all loans, all/pending reservations, users, copies
	PersonalTTL = 30 * time.Second // the caller's own loans and reservations, books
)

// Cache stores response bodies by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Invalidate drops every entry whose key starts with prefix.
	Invalidate(ctx context.Context, prefix string)
}

// Keyer builds cache keys under a namespace prefix.
type Keyer struct {
	Prefix string
}

// Key returns "<prefix>:<resource>:<sha1(token|path|query)>". resource is the
// first segment of path, so Invalidate(ctx, k.Resource(path)) drops every
// cached page of a resource for every user.
func (k Keyer) Key(token, path string, query url.Values) string {
	sum := sha1.Sum([]byte(token + "|" + path + "|" + query.Encode()))
	return fmt.Sprintf("%s%x", k.Resource(path), sum[:])
}

// Resource returns the key prefix shared by all entries of path's resource.
func (k Keyer) Resource(path string) string {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	prefix := k.Prefix
	if prefix == "" {
		prefix = "folio"
	}
	return prefix + ":" + seg + ":"
}
