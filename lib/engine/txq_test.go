package engine

import "testing"

// TestTxQueueOrdering verifies the head is always the lowest txid
func TestTxQueueOrdering(t *testing.T) {
	q := NewTxQueue()

	if !q.Empty() {
		t.Fatal("New queue should be empty")
	}

	for _, id := range []TxId{50, 10, 30, 20, 40} {
		q.Insert(newTestTrans(id))
	}

	if q.Size() != 5 {
		t.Errorf("Size = %d", q.Size())
	}
	if q.HeadScore() != 10 {
		t.Errorf("HeadScore = %d, expected 10", q.HeadScore())
	}

	want := []TxId{10, 20, 30, 40, 50}
	for _, id := range want {
		if q.Front().TxID() != id {
			t.Fatalf("Front = %d, expected %d", q.Front().TxID(), id)
		}
		if q.PopFront().TxID() != id {
			t.Fatalf("PopFront out of order at %d", id)
		}
	}

	if !q.Empty() {
		t.Error("Queue should be empty after draining")
	}
}

// TestTxQueueRemove verifies id-based removal from the middle
func TestTxQueueRemove(t *testing.T) {
	q := NewTxQueue()

	for _, id := range []TxId{1, 2, 3, 4} {
		q.Insert(newTestTrans(id))
	}

	if !q.Remove(3) {
		t.Fatal("Remove(3) failed")
	}
	if q.Remove(3) {
		t.Error("Second Remove(3) should report absence")
	}
	if q.Contains(3) {
		t.Error("Removed id still contained")
	}

	want := []TxId{1, 2, 4}
	for _, id := range want {
		if got := q.PopFront().TxID(); got != id {
			t.Fatalf("PopFront = %d, expected %d", got, id)
		}
	}
}

// TestTxQueueDoubleInsertPanics verifies scheduling the same id twice is fatal
func TestTxQueueDoubleInsertPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Double insert should panic")
		}
	}()

	q := NewTxQueue()
	q.Insert(newTestTrans(7))
	q.Insert(newTestTrans(7))
}
