// Package credentials stores mirror credentials in pebble, keyed by the
// storageKey a mirror references.
package credentials

import (
	"encoding/json"
	"errors"

	"github.com/cockroachdb/pebble"
	"go.trai.ch/zerr"

	"pixopt/logger"
)

var (
	ErrNotOpen  = zerr.New("credentials store not open")
	ErrNotFound = zerr.New("credentials not found")
)

var db *pebble.DB

// OpenDB opens the Pebble DB for credentials at the specified path
func OpenDB(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		logger.Errorf("Failed to open Pebble DB: %v", err)
		return zerr.With(zerr.Wrap(err, "failed to open credentials store"), "path", dbPath)
	}
	return nil
}

// CloseDB closes the DB
func CloseDB() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

// GetCredentials returns the credential map stored under key.
func GetCredentials(key string) (map[string]string, error) {
	if db == nil {
		return nil, ErrNotOpen
	}
	value, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, zerr.With(zerr.Wrap(ErrNotFound, "get credentials"), "storage_key", key)
		}
		return nil, zerr.Wrap(err, "failed to read credentials")
	}
	defer closer.Close()

	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to decode credentials"), "storage_key", key)
	}
	return creds, nil
}

// StoreCredentials stores the credentials map under the given key
func StoreCredentials(key string, creds map[string]string) error {
	if db == nil {
		return ErrNotOpen
	}
	encodedCreds, err := json.Marshal(creds)
	if err != nil {
		return zerr.Wrap(err, "failed to encode credentials")
	}
	return db.Set([]byte(key), encodedCreds, pebble.Sync)
}

// DeleteCredentials deletes the credentials for the given key
func DeleteCredentials(key string) error {
	if db == nil {
		return ErrNotOpen
	}
	return db.Delete([]byte(key), pebble.Sync)
}
