// Package store provides the durable key-value media the front ends keep
// their client-side state in. The interface mirrors browser Web Storage so a
// cookie jar, a credentials file and a SQLite table are interchangeable.
package store

// Store is a string key-value medium.
type Store interface {
	// GetItem returns the value under key. ok is false when the key is unset.
	GetItem(key string) (value string, ok bool, err error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error
}

// Kind names a Store backend selectable from configuration.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
	KindNone   Kind = "none"
)
