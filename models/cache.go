package models

// CacheValue is the payload persisted per cache key.
type CacheValue struct {
	Buffer    []byte
	Extension string
	MaxAge    int // seconds
}

// CacheEntry is a CacheValue plus its expiry bookkeeping.
type CacheEntry struct {
	Value    CacheValue
	ExpireAt int64 // epoch milliseconds
	IsStale  bool
}
