package engine

import (
	"sort"
	"time"

	"github.com/emberdb/ember/lib/slice"
)

// BlockingController tracks transactions parked on keys of blocking
// commands. Writers notify it after PostUpdate; it re-arms the earliest
// parked transaction whose keys became ready via the shard task queue.
// Created lazily by the first blocking transaction of a shard.
type BlockingController struct {
	owner *EngineShard

	// watched maps db -> key -> parked transactions ordered by txid.
	watched map[slice.DbIndex]map[string][]BlockingTransaction

	// awakedPending counts wakeups posted but not yet run; while non-zero
	// the execution poll must not drain the queue past the awaked
	// transaction's notify id.
	awakedPending int
}

// NewBlockingController creates a controller for one shard.
func NewBlockingController(owner *EngineShard) *BlockingController {
	return &BlockingController{
		owner:   owner,
		watched: make(map[slice.DbIndex]map[string][]BlockingTransaction),
	}
}

// AddWatched parks a transaction on its keys. A positive deadline schedules
// a timed-out resume.
func (bc *BlockingController) AddWatched(db slice.DbIndex, keys []string, trans BlockingTransaction, deadline time.Duration) {
	queues, ok := bc.watched[db]
	if !ok {
		queues = make(map[string][]BlockingTransaction)
		bc.watched[db] = queues
	}

	for _, key := range keys {
		q := queues[key]
		pos := sort.Search(len(q), func(i int) bool { return q[i].TxID() >= trans.TxID() })
		if pos < len(q) && q[pos] == trans {
			continue
		}
		q = append(q, nil)
		copy(q[pos+1:], q[pos:])
		q[pos] = trans
		queues[key] = q
	}

	if deadline > 0 {
		time.AfterFunc(deadline, func() {
			bc.owner.Add(func() { bc.expireWatched(db, keys, trans) })
		})
	}
}

// RemoveWatched drops a transaction from all its watch queues; used when it
// concludes without a wakeup.
func (bc *BlockingController) RemoveWatched(db slice.DbIndex, keys []string, trans BlockingTransaction) {
	queues, ok := bc.watched[db]
	if !ok {
		return
	}
	for _, key := range keys {
		bc.removeFromQueue(queues, key, trans)
	}
}

func (bc *BlockingController) removeFromQueue(queues map[string][]BlockingTransaction, key string, trans BlockingTransaction) bool {
	q, ok := queues[key]
	if !ok {
		return false
	}
	for i, t := range q {
		if t == trans {
			q = append(q[:i], q[i+1:]...)
			if len(q) == 0 {
				delete(queues, key)
			} else {
				queues[key] = q
			}
			return true
		}
	}
	return false
}

// NotifyWatchQueue is called by writers after PostUpdate on a key with
// parked readers. It awakes the earliest parked transaction and re-arms it
// through the shard task queue.
func (bc *BlockingController) NotifyWatchQueue(db slice.DbIndex, key string) {
	queues, ok := bc.watched[db]
	if !ok {
		return
	}
	q, ok := queues[key]
	if !ok || len(q) == 0 {
		return
	}

	// the head is the lowest txid: wake it and drop all its registrations
	trans := q[0]
	bc.dropEverywhere(queues, trans)

	if !trans.Awake(bc.owner.ShardID(), bc.owner.CommittedTxID(), false) {
		return
	}

	bc.awakedPending++
	bc.owner.Add(func() {
		bc.owner.PollExecution("awake", trans)
	})
}

// expireWatched resumes a still-parked transaction with the timed-out
// outcome.
func (bc *BlockingController) expireWatched(db slice.DbIndex, keys []string, trans BlockingTransaction) {
	queues, ok := bc.watched[db]
	if !ok {
		return
	}

	removed := false
	for _, key := range keys {
		removed = bc.removeFromQueue(queues, key, trans) || removed
	}
	if !removed {
		// already awakened or concluded
		return
	}

	if trans.Awake(bc.owner.ShardID(), bc.owner.CommittedTxID(), true) {
		bc.awakedPending++
		bc.owner.PollExecution("deadline", trans)
	}
}

func (bc *BlockingController) dropEverywhere(queues map[string][]BlockingTransaction, trans BlockingTransaction) {
	for key := range queues {
		bc.removeFromQueue(queues, key, trans)
	}
}

// onAwakedRun is invoked by the execution poll right before an awaked
// transaction runs.
func (bc *BlockingController) onAwakedRun(Transaction) {
	if bc.awakedPending > 0 {
		bc.awakedPending--
	}
}

// HasAwakedTransaction reports whether a posted wakeup has not run yet.
func (bc *BlockingController) HasAwakedTransaction() bool {
	return bc.awakedPending > 0
}

// GetWatchedKeys returns the keys with parked transactions in a database.
func (bc *BlockingController) GetWatchedKeys(db slice.DbIndex) []string {
	queues, ok := bc.watched[db]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(queues))
	for key := range queues {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
