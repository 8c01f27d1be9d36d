package models

import "time"

// MirrorSpec describes one replication target for cached images.
type MirrorSpec struct {
	Type       string `yaml:"type" json:"type"`             // directServe, s3, gcs or sftp
	StorageKey string `yaml:"storageKey" json:"storageKey"` // key into the credentials store
	Prefix     string `yaml:"prefix" json:"prefix"`         // folder / object prefix
}

// MirrorJob copies the current file of one cache entry to one mirror. The
// file is resolved when the job runs, so a rewritten entry mirrors its
// latest bytes.
type MirrorJob struct {
	ID          string     `json:"id"`
	CacheKey    string     `json:"cache_key"`
	Dir         string     `json:"dir"` // cache directory of CacheKey
	ContentType string     `json:"content_type"`
	Mirror      MirrorSpec `json:"mirror"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
