package sync

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// remoteHash caches one RemoteSaveHash answer, including "not on server".
type remoteHash struct {
	hash string
	ok   bool
}

// RemoteHashCache keeps recent remote hash answers so bursts of status
// lookups do not hammer the backend. Entries expire on their own; push and
// pull invalidate their save explicitly.
type RemoteHashCache struct {
	entries *expirable.LRU[string, remoteHash]
}

func NewRemoteHashCache(ttl time.Duration) *RemoteHashCache {
	return &RemoteHashCache{
		entries: expirable.NewLRU[string, remoteHash](0, nil, ttl), // 0 = LRU off
	}
}

// Get returns the cached answer for a save. cached is false when the entry
// expired or was never stored.
func (c *RemoteHashCache) Get(name string) (hash string, ok bool, cached bool) {
	entry, cached := c.entries.Get(name)
	if !cached {
		return "", false, false
	}
	return entry.hash, entry.ok, true
}

// Set stores an answer. ok false records that the backend has no such save.
func (c *RemoteHashCache) Set(name string, hash string, ok bool) {
	c.entries.Add(name, remoteHash{hash: hash, ok: ok})
}

// Invalidate drops the entry for one save.
func (c *RemoteHashCache) Invalidate(name string) {
	c.entries.Remove(name)
}

// Purge drops every entry.
func (c *RemoteHashCache) Purge() {
	c.entries.Purge()
}
