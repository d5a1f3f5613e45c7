// Package store keeps database images durable between sessions. Two backends are
// provided: a plain directory of files and a SQL table (sqlite, postgres or mysql).
// Images can optionally be encrypted at rest.
package store

import "time"

// Record is a stored database image with its metadata.
type Record struct {
	ID        string    `toml:"id"`
	Name      string    `toml:"name"`
	SizeBytes int64     `toml:"size_bytes"`
	Timestamp time.Time `toml:"timestamp"`
	Bytes     []byte    `toml:"-"`
}

// Usage reports space taken by stored images. Quota of zero means unknown.
type Usage struct {
	Used  int64
	Quota int64
}

// Store is the persistence collaborator for database images.
type Store interface {
	Put(rec Record) error
	Get(id string) (Record, error)
	GetAll() ([]Record, error)
	Delete(id string) error
	Clear() error
	EstimateUsage() (Usage, error)
}
