package engine

// TxId is the monotonically increasing transaction id assigned by the
// coordinator.
type TxId = uint64

// Local-mask bits describing a transaction's state on one shard.
const (
	// Armed marks a transaction whose callback is ready to run here.
	Armed uint16 = 1 << iota

	// OutOfOrder marks a transaction the coordinator vouched to be
	// lock-compatible with everything ahead of it in the queue.
	OutOfOrder

	// KeylockAcquired marks that the transaction holds its key locks on
	// this shard.
	KeylockAcquired

	// SuspendedQ marks a transaction parked on blocking keys.
	SuspendedQ

	// AwakedQ marks a parked transaction that a writer resumed.
	AwakedQ
)

// Transaction is the shard-side contract of a scheduled transaction.
// Transactions are state machines driven by PollExecution; they carry no
// goroutine of their own.
type Transaction interface {
	// TxID returns the coordinator-assigned id.
	TxID() TxId

	// NotifyTxID returns the committed txid observed when the transaction
	// was awakened from a blocking wait.
	NotifyTxID() TxId

	// IsArmedInShard reports whether the transaction armed a callback on
	// the given shard.
	IsArmedInShard(sid uint32) bool

	// LocalMask returns the transaction's state bits on the given shard.
	LocalMask(sid uint32) uint16

	// RunInShard executes the armed callback on the shard's thread. The
	// "keep" result asks the shard to retain the transaction as its
	// continuation between hops.
	RunInShard(es *EngineShard) bool

	// DebugID renders a short id for logging.
	DebugID() string
}

// BlockingTransaction extends Transaction with the wakeup hook the blocking
// controller drives.
type BlockingTransaction interface {
	Transaction

	// Awake transitions the transaction from suspended to awaked on the
	// given shard. committed is the shard's committed txid at wakeup time,
	// which the transaction must report from NotifyTxID; timedOut reports a
	// deadline-driven wakeup. It returns false when the transaction already
	// concluded.
	Awake(sid uint32, committed TxId, timedOut bool) bool
}
