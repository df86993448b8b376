package engine

import (
	"testing"
	"time"
)

// TestNotifyWakesEarliest verifies a write resumes the lowest-id parked
// transaction through the task queue.
func TestNotifyWakesEarliest(t *testing.T) {
	set := newTestSet(t, nil)
	es := set.Shard(0)

	t3 := newTestTrans(3)
	t5 := newTestTrans(5)

	Await(es, func() struct{} {
		es.AddBlocked(0, []string{"queue-key"}, t3, 0)
		es.AddBlocked(0, []string{"queue-key"}, t5, 0)
		return struct{}{}
	})

	keys := Await(es, func() []string {
		return es.BlockingControllerRef().GetWatchedKeys(0)
	})
	if len(keys) != 1 || keys[0] != "queue-key" {
		t.Fatalf("GetWatchedKeys = %v", keys)
	}

	Await(es, func() struct{} {
		es.BlockingControllerRef().NotifyWatchQueue(0, "queue-key")
		return struct{}{}
	})

	// the wakeup task re-arms the earliest transaction
	deadline := time.After(time.Second)
	for t3.runCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Earliest parked transaction never resumed")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if t5.runCount() != 0 {
		t.Error("Later parked transaction resumed out of turn")
	}

	// the awakened transaction left every watch queue
	remaining := Await(es, func() []string {
		return es.BlockingControllerRef().GetWatchedKeys(0)
	})
	if len(remaining) != 1 {
		t.Errorf("Remaining watched keys = %v", remaining)
	}
}

// TestNotifyWithoutWatchers is a no-op.
func TestNotifyWithoutWatchers(t *testing.T) {
	set := newTestSet(t, nil)
	es := set.Shard(0)

	Await(es, func() struct{} {
		es.AddBlocked(0, []string{"other"}, newTestTrans(1), 0)
		es.BlockingControllerRef().NotifyWatchQueue(0, "unrelated")
		es.BlockingControllerRef().NotifyWatchQueue(1, "unrelated")
		return struct{}{}
	})
}

// TestDeadlineResume verifies the blocking deadline posts a timed-out
// resume.
func TestDeadlineResume(t *testing.T) {
	set := newTestSet(t, nil)
	es := set.Shard(0)

	tb := newTestTrans(9)

	Await(es, func() struct{} {
		es.AddBlocked(0, []string{"never-written"}, tb, 20*time.Millisecond)
		return struct{}{}
	})

	deadline := time.After(time.Second)
	for tb.runCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Deadline never resumed the transaction")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if got := Await(es, func() int {
		return len(es.BlockingControllerRef().GetWatchedKeys(0))
	}); got != 0 {
		t.Errorf("Watched keys left after the deadline: %d", got)
	}
}

// TestRemoveWatched verifies a concluded transaction unparks cleanly.
func TestRemoveWatched(t *testing.T) {
	set := newTestSet(t, nil)
	es := set.Shard(0)

	tb := newTestTrans(4)

	Await(es, func() struct{} {
		es.AddBlocked(0, []string{"k1", "k2"}, tb, 0)
		es.BlockingControllerRef().RemoveWatched(0, []string{"k1", "k2"}, tb)
		return struct{}{}
	})

	if got := Await(es, func() int {
		return len(es.BlockingControllerRef().GetWatchedKeys(0))
	}); got != 0 {
		t.Errorf("Watched keys after removal: %d", got)
	}

	// a notify after removal must not resume it
	Await(es, func() struct{} {
		es.BlockingControllerRef().NotifyWatchQueue(0, "k1")
		return struct{}{}
	})
	time.Sleep(20 * time.Millisecond)
	if tb.runCount() != 0 {
		t.Error("Removed transaction was resumed")
	}
}
