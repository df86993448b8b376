package engine

import (
	"fmt"
	"runtime"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/emberdb/ember/lib/slice"
	"github.com/emberdb/ember/lib/tiered"
	"github.com/emberdb/ember/lib/util"
)

var log = logger.GetLogger("engine")

// taskQueueLen bounds the per-shard mailbox.
const taskQueueLen = 64

// Stats counts the execution-path events of one shard.
type Stats struct {
	OooRuns   uint64
	QuickRuns uint64
}

// Add accumulates another stats block.
func (s *Stats) Add(o Stats) {
	s.OooRuns += o.OooRuns
	s.QuickRuns += o.QuickRuns
}

// EngineShard owns one partition of the keyspace and the single goroutine
// that touches it.
type EngineShard struct {
	shardID uint32
	set     *EngineShardSet

	queue *util.TaskQueue[func()]

	txq               *TxQueue
	committedTxid     TxId
	continuationTrans Transaction

	dbSlice  *slice.DbSlice
	blocking *BlockingController
	tiered   *tiered.Storage

	stats       Stats
	oooRunsM    *metrics.Counter
	quickRunsM  *metrics.Counter

	// Adaptive TTL reaping: exponentially weighted moving averages of the
	// reaper's recent (traversed, deleted) counts.
	ttlTraverse gometrics.EWMA
	ttlDelete   gometrics.EWMA

	// objSizeHist smooths the bytes-per-object estimate across heartbeats.
	objSizeHist *util.SizeHistogram

	heartbeatTicks uint64
	ewmaTickEvery  uint64
	lastPublished  int64

	done chan struct{}
}

func newEngineShard(set *EngineShardSet, shardID uint32) *EngineShard {
	es := &EngineShard{
		shardID:     shardID,
		set:         set,
		queue:       util.NewTaskQueue[func()](taskQueueLen),
		txq:         NewTxQueue(),
		dbSlice:     slice.New(shardID, set.opts.CacheMode, set.opts.MaxMemory/int64(set.opts.NumShards)),
		oooRunsM:    metrics.GetOrCreateCounter(fmt.Sprintf(`ember_shard_ooo_runs_total{shard="%d"}`, shardID)),
		quickRunsM:  metrics.GetOrCreateCounter(fmt.Sprintf(`ember_shard_quick_runs_total{shard="%d"}`, shardID)),
		ttlTraverse: gometrics.NewEWMA1(),
		ttlDelete:   gometrics.NewEWMA1(),
		objSizeHist: util.NewSizeHistogram(),
		done:        make(chan struct{}),
	}

	es.dbSlice.UpdateExpireBase(time.Now().UnixMilli(), 0)
	es.dbSlice.UpdateExpireClock(uint64(time.Now().UnixMilli()))

	if set.opts.BackingPrefix != "" {
		ts, err := tiered.Open(tiered.BackingPath(set.opts.BackingPrefix, shardID))
		if err != nil {
			log.Panicf("shard %d: opening backing file: %v", shardID, err)
		}
		es.tiered = ts
		es.dbSlice.SetTieredStorage(ts)
	}

	hz := set.opts.Hz
	if hz < 1 {
		hz = 1
	}
	clockCycle := time.Second / time.Duration(hz)
	if clockCycle == 0 {
		clockCycle = time.Millisecond
	}
	// the EWMA decays on a fixed 5s cadence
	es.ewmaTickEvery = uint64(5 * hz)

	go es.loop(clockCycle)

	return es
}

// loop is the shard's only thread: it drains the mailbox and fires the
// heartbeat.
func (es *EngineShard) loop(clockCycle time.Duration) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(clockCycle)
	defer ticker.Stop()

	for {
		select {
		case task, ok := <-es.queue.Recv():
			if !ok {
				close(es.done)
				return
			}
			(*task)()
		case <-ticker.C:
			es.Heartbeat()
		}
	}
}

// ShardID returns the shard's index.
func (es *EngineShard) ShardID() uint32 {
	return es.shardID
}

// DbSlice returns the shard's data surface.
func (es *EngineShard) DbSlice() *slice.DbSlice {
	return es.dbSlice
}

// TxQ returns the shard's transaction queue.
func (es *EngineShard) TxQ() *TxQueue {
	return es.txq
}

// CommittedTxID returns the id of the last transaction dequeued from the
// queue head.
func (es *EngineShard) CommittedTxID() TxId {
	return es.committedTxid
}

// TieredStorage returns the shard's backing store, or nil.
func (es *EngineShard) TieredStorage() *tiered.Storage {
	return es.tiered
}

// GetStats snapshots the shard's execution stats.
func (es *EngineShard) GetStats() Stats {
	return es.stats
}

// Shutdown stops the shard thread and closes the backing store.
func (es *EngineShard) Shutdown() {
	es.queue.Close()
	<-es.done

	if es.tiered != nil {
		if err := es.tiered.Shutdown(); err != nil {
			log.Errorf("shard %d: closing backing file: %v", es.shardID, err)
		}
	}
}

// --------------------------------------------------------------------------
// Task posting
// --------------------------------------------------------------------------

// Add enqueues a unit of work and wakes the shard. Tasks posted to a shard
// run in FIFO order relative to each other. Add applies backpressure when
// the mailbox is full.
func (es *EngineShard) Add(task func()) {
	for !es.queue.Push(&task) {
		if es.queue.IsClosed() {
			log.Warningf("shard %d: dropping task after shutdown", es.shardID)
			return
		}
		runtime.Gosched()
	}
}

// Await runs fn on the shard's thread and returns its result, suspending
// the caller.
func Await[T any](es *EngineShard, fn func() T) T {
	res := make(chan T, 1)
	es.Add(func() { res <- fn() })
	return <-res
}

// AwaitErr runs fn on the shard's thread and returns its error.
func AwaitErr(es *EngineShard, fn func() error) error {
	return Await(es, fn)
}

// --------------------------------------------------------------------------
// Execution poll
// --------------------------------------------------------------------------

// PollExecution inspects the shard's queue and runs all eligible work. It
// is invoked from the shard task loop and directly by a transaction arming
// itself on this shard.
func (es *EngineShard) PollExecution(context string, trans Transaction) {
	log.Debugf("PollExecution %s %s queue=%d", context, debugID(trans), es.txq.Size())

	sid := es.shardID

	var transMask uint16
	if trans != nil {
		transMask = trans.LocalMask(sid)
	}

	if transMask&AwakedQ != 0 {
		// A resumed blocking transaction runs before anything else; the
		// queue converged to its notify id when it was awakened.
		if es.continuationTrans != nil {
			log.Panicf("shard %d: awaked transaction with continuation installed", sid)
		}
		if es.committedTxid != trans.NotifyTxID() {
			log.Panicf("shard %d: awaked txid %d but committed %d != notify %d",
				sid, trans.TxID(), es.committedTxid, trans.NotifyTxID())
		}
		if es.blocking != nil {
			es.blocking.onAwakedRun(trans)
		}
		es.stats.QuickRuns++
		es.quickRunsM.Inc()
		if keep := trans.RunInShard(es); keep {
			es.continuationTrans = trans
			return
		}
		trans = nil
	}

	if es.continuationTrans != nil {
		if trans == es.continuationTrans {
			trans = nil
		}

		if es.continuationTrans.IsArmedInShard(sid) {
			toKeep := es.continuationTrans.RunInShard(es)
			log.Debugf("RunContTrans: %s keep: %v", es.continuationTrans.DebugID(), toKeep)
			if !toKeep {
				es.continuationTrans = nil
			}
		}
	}

	hasAwakedTrans := es.blocking != nil && es.blocking.HasAwakedTransaction()
	var head Transaction

	if es.continuationTrans == nil && !hasAwakedTrans {
		for !es.txq.Empty() {
			head = es.txq.Front()

			// The fact that the transaction is in the queue already means
			// its coordinator will not progress, so testing the armed flag
			// is enough.
			if !head.IsArmedInShard(sid) {
				break
			}

			// This poll must not process two different callbacks of the
			// same transaction: a head processed via the queue may be the
			// caller, which must then not re-run on the eager path below.
			if head == trans {
				trans = nil
			}

			txid := head.TxID()
			if txid <= es.committedTxid {
				log.Panicf("shard %d: committed txid %d not below head %d", sid, es.committedTxid, txid)
			}

			// Update the committed id before running, so a peer that
			// queries this shard mid-run observes a value consistent with
			// the run about to happen.
			es.committedTxid = txid
			es.txq.PopFront()

			if keep := head.RunInShard(es); keep {
				es.continuationTrans = head
				break
			}
		}
	} else {
		log.Debugf("skipped TxQueue %v %v", es.continuationTrans, hasAwakedTrans)
	}

	// Run the caller eagerly when it is out-of-order or suspended here. Any
	// other transaction touching its keys is necessarily ordered after it
	// in the queue, so the eager run is safe.
	shouldRun := transMask&(OutOfOrder|SuspendedQ) != 0
	if trans != nil && shouldRun {
		if trans == head {
			log.Panicf("shard %d: eager run of the processed head %s", sid, trans.DebugID())
		}
		if trans.LocalMask(sid)&Armed == 0 {
			log.Panicf("shard %d: eager run of unarmed %s", sid, trans.DebugID())
		}

		es.stats.OooRuns++
		es.oooRunsM.Inc()

		keep := trans.RunInShard(es)
		log.Debugf("eager run %d %s keep %v", sid, trans.DebugID(), keep)
		if !keep {
			es.txq.Remove(trans.TxID())
		}
	}
}

// ShutdownMulti clears the continuation slot when a multi transaction
// concludes.
func (es *EngineShard) ShutdownMulti(trans Transaction) {
	if es.continuationTrans == trans {
		es.continuationTrans = nil
	}
}

// AddBlocked parks a transaction on its blocking keys, creating the
// controller lazily.
func (es *EngineShard) AddBlocked(db slice.DbIndex, keys []string, trans BlockingTransaction, deadline time.Duration) {
	if es.blocking == nil {
		es.blocking = NewBlockingController(es)
	}
	es.blocking.AddWatched(db, keys, trans, deadline)
}

// BlockingControllerRef returns the controller, or nil if no transaction
// ever blocked on this shard.
func (es *EngineShard) BlockingControllerRef() *BlockingController {
	return es.blocking
}

func debugID(trans Transaction) string {
	if trans == nil {
		return ""
	}
	return trans.DebugID()
}

// --------------------------------------------------------------------------
// Heartbeat
// --------------------------------------------------------------------------

// Heartbeat runs on every tick of the shard clock.
func (es *EngineShard) Heartbeat() {
	es.dbSlice.UpdateExpireClock(uint64(time.Now().UnixMilli()))

	es.heartbeatTicks++
	if es.ewmaTickEvery > 0 && es.heartbeatTicks%es.ewmaTickEvery == 0 {
		es.ttlTraverse.Tick()
		es.ttlDelete.Tick()
	}

	if es.heartbeatTicks%8 != 0 {
		return
	}

	es.CacheStats()

	const (
		ttlDeleteLimit = 200.0
		redLimitFactor = 0.1
	)

	traversed := es.ttlTraverse.Rate()
	deleted := es.ttlDelete.Rate()

	ttlDeleteTarget := 5
	if deleted > 10 {
		// deleted <= traversed, so the ratio maps into [0, ttlDeleteLimit)
		ttlDeleteTarget = int(ttlDeleteLimit * deleted / (traversed + 10))
	}

	redline := int64(float64(es.dbSlice.MaxMemoryShard()) * redLimitFactor)

	for i := 0; i < es.dbSlice.DbArraySize(); i++ {
		db := slice.DbIndex(i)
		if !es.dbSlice.IsDbValid(db) {
			continue
		}

		pt, expt := es.dbSlice.GetTables(db)
		if expt.Size() > pt.Size()/4 {
			stats := es.dbSlice.DeleteExpiredStep(db, ttlDeleteTarget)

			es.ttlTraverse.Update(int64(stats.Traversed))
			es.ttlDelete.Update(int64(stats.Deleted))
		}

		if es.dbSlice.MemoryBudget() < redline {
			es.dbSlice.FreeMemWithEvictionStep(db, redline-es.dbSlice.MemoryBudget())
		}
	}
}

// CacheStats refreshes the cached memory statistics: the shard's used
// memory published to the shard set, the per-shard budget, and the smoothed
// bytes-per-object estimate.
func (es *EngineShard) CacheStats() {
	used := es.UsedMemory()

	// publish the delta into the process-wide counter
	es.set.publishUsedMemory(es.shardID, used-es.lastPublished)
	es.lastPublished = used

	freeMem := es.set.opts.MaxMemory - es.set.UsedMemoryTotal()

	var (
		entries     int64
		tableMemory int64
	)
	for i := 0; i < es.dbSlice.DbArraySize(); i++ {
		db := slice.DbIndex(i)
		if !es.dbSlice.IsDbValid(db) {
			continue
		}
		pt, expt := es.dbSlice.GetTables(db)
		entries += int64(pt.Size())
		tableMemory += pt.MemUsage() + expt.MemUsage()
	}

	objMemory := int64(0)
	if tableMemory <= used {
		objMemory = used - tableMemory
	}

	if entries > 0 {
		es.objSizeHist.AddSample(int(objMemory / entries))
	}
	bytesPerObj := int64(es.objSizeHist.MedianEstimate())

	es.dbSlice.SetCachedParams(freeMem/int64(es.set.Size()), bytesPerObj)
}

// UsedMemory estimates the bytes held by this shard.
func (es *EngineShard) UsedMemory() int64 {
	used := es.dbSlice.UsedMemory()
	if es.tiered != nil {
		used += es.tiered.Allocated()
	}
	return used
}
