package store

import (
	"sync"

	id "signet/pkg/domain"
)

// numShards spreads per-document locks so unrelated documents rarely contend.
const numShards = 128

type shardedLocks struct {
	shards [numShards]sync.Mutex
}

func (l *shardedLocks) lock(docID id.DocumentID) func() {
	m := &l.shards[shardFor(docID)]
	m.Lock()
	return m.Unlock
}

// shardFor uses FNV-1a over the ID bytes.
func shardFor(docID id.DocumentID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range docID {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h % numShards
}
