package buffer

import (
	"fmt"
	"sync"
)

// NewLrukReplacer tracks up to capacity frames and picks eviction victims by
// k-distance: the evictable frame whose k-th most recent access lies
// furthest in the past. A frame with fewer than k recorded accesses has
// infinite k-distance and is always preferred.
func NewLrukReplacer(capacity, k int) *lrukReplacer {
	return &lrukReplacer{
		k:            k,
		nodeStore:    map[int]*lrukNode{},
		replacerSize: capacity,
	}
}

func (lru *lrukReplacer) recordAccess(frameId int, accessType AccessType) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.mustBeValid(frameId)

	node, ok := lru.nodeStore[frameId]
	if !ok {
		node = &lrukNode{frameId: frameId, k: lru.k}
		lru.nodeStore[frameId] = node
	}

	lru.currTimestamp += 1
	node.addTimestamp(lru.currTimestamp)
	node.lastAccessType = accessType
}

func (lru *lrukReplacer) setEvictable(frameId int, evictable bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node := lru.mustGet(frameId)
	if node.isEvictable == evictable {
		return
	}

	node.isEvictable = evictable
	if evictable {
		lru.currSize += 1
	} else {
		lru.currSize -= 1
	}
}

// evict picks the victim with the largest k-distance. Candidates with fewer
// than k accesses dominate; within either class ties resolve to the oldest
// first access, then the smallest frame id.
func (lru *lrukReplacer) evict() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if lru.currSize == 0 {
		return INVALID_FRAME_ID, false
	}

	var coldVictim, warmVictim *lrukNode
	for _, node := range lru.nodeStore {
		if !node.isEvictable {
			continue
		}

		if !node.hasKAccess() {
			if better(node, coldVictim) {
				coldVictim = node
			}
		} else if better(node, warmVictim) {
			warmVictim = node
		}
	}

	victim := coldVictim
	if victim == nil {
		victim = warmVictim
	}
	if victim == nil {
		return INVALID_FRAME_ID, false
	}

	delete(lru.nodeStore, victim.frameId)
	lru.currSize -= 1
	return victim.frameId, true
}

func (lru *lrukReplacer) remove(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node := lru.mustGet(frameId)
	if !node.isEvictable {
		panic(fmt.Sprintf("removing non-evictable frame %d from replacer", frameId))
	}

	delete(lru.nodeStore, frameId)
	lru.currSize -= 1
}

func (lru *lrukReplacer) size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	return lru.currSize
}

func (lru *lrukReplacer) mustBeValid(frameId int) {
	if frameId < 0 || frameId >= lru.replacerSize {
		panic(fmt.Sprintf("frame id %d out of range for replacer of %d frames", frameId, lru.replacerSize))
	}
}

func (lru *lrukReplacer) mustGet(frameId int) *lrukNode {
	lru.mustBeValid(frameId)

	node, ok := lru.nodeStore[frameId]
	if !ok {
		panic(fmt.Sprintf("frame %d has no access history", frameId))
	}
	return node
}

// better reports whether a beats the current candidate: smaller oldest
// timestamp wins, frame id breaks exact ties.
func better(a, b *lrukNode) bool {
	if b == nil {
		return true
	}
	if a.oldestAccess() != b.oldestAccess() {
		return a.oldestAccess() < b.oldestAccess()
	}
	return a.frameId < b.frameId
}

type lrukReplacer struct {
	mu            sync.Mutex
	nodeStore     map[int]*lrukNode
	replacerSize  int
	currSize      int
	currTimestamp int
	k             int
}
