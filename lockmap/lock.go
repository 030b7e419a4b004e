// lockmap is a sharded lock map.
//
// The API is as if LockMap consisted of a lock for every possible uint64 key
// (inode numbers, inode-table block numbers); LockMap.Acquire(k) acquires the
// lock associated with k and LockMap.Release(k) releases it.
//
// The implementation doesn't actually maintain all of these locks; it
// instead maintains a fixed collection of shards so that shard i is
// responsible for maintaining the lock state of all k such that k % NSHARD = i.
// Acquiring a lock requires synchronizing with any threads accessing the same
// shard.
package lockmap

import (
	"sync"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	return &lockShard{
		mu:    new(sync.Mutex),
		state: make(map[uint64]*lockState),
	}
}

func (shard *lockShard) acquire(key uint64) {
	shard.mu.Lock()
	for {
		state, ok := shard.state[key]
		if !ok {
			state = &lockState{cond: sync.NewCond(shard.mu)}
			shard.state[key] = state
		}
		if !state.held {
			state.held = true
			break
		}
		state.waiters += 1
		state.cond.Wait()
		// release only deletes states without waiters, so ours survived
		shard.state[key].waiters -= 1
	}
	shard.mu.Unlock()
}

func (shard *lockShard) release(key uint64) {
	shard.mu.Lock()
	state, ok := shard.state[key]
	if !ok || !state.held {
		shard.mu.Unlock()
		panic("lockmap: release of unheld key")
	}
	state.held = false
	if state.waiters > 0 {
		state.cond.Signal()
	} else {
		delete(shard.state, key)
	}
	shard.mu.Unlock()
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	var shards []*lockShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) Acquire(key uint64) {
	lmap.shards[key%NSHARD].acquire(key)
}

func (lmap *LockMap) Release(key uint64) {
	lmap.shards[key%NSHARD].release(key)
}
