// This file provides the per-shard transaction queue: a priority queue
// ordered by transaction id with O(1) id-based access.
//
// The queue combines a binary heap with a hash map so that the execution
// poll can read the lowest-id head in O(1), while transactions that
// conclude out of order remove themselves by id in O(log n).
package engine

import (
	"container/heap"
	"fmt"
)

// txItem is one queued transaction with its heap bookkeeping.
type txItem struct {
	trans Transaction
	index int // index in the heap, maintained by the heap package
}

func (i *txItem) String() string {
	return fmt.Sprintf("{txid: %d}", i.trans.TxID())
}

// TxQueue is the priority queue of transactions scheduled on one shard.
// The head is the transaction with the lowest id. Not thread-safe; owned by
// the shard thread.
type TxQueue struct {
	items  []*txItem
	itemNr map[TxId]*txItem
}

// NewTxQueue creates an empty queue.
func NewTxQueue() *TxQueue {
	return &TxQueue{
		itemNr: make(map[TxId]*txItem),
	}
}

// txHeap adapts TxQueue to the heap interface.
type txHeap TxQueue

func (h *txHeap) Len() int { return len(h.items) }

func (h *txHeap) Less(i, j int) bool {
	return h.items[i].trans.TxID() < h.items[j].trans.TxID()
}

func (h *txHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *txHeap) Push(x interface{}) {
	n := len(h.items)
	item := x.(*txItem)
	item.index = n
	h.items = append(h.items, item)
	h.itemNr[item.trans.TxID()] = item
}

func (h *txHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	delete(h.itemNr, item.trans.TxID())
	return item
}

// Insert schedules a transaction. Inserting the same id twice is an
// invariant violation.
func (q *TxQueue) Insert(trans Transaction) {
	if _, ok := q.itemNr[trans.TxID()]; ok {
		panic(fmt.Sprintf("engine: txid %d scheduled twice", trans.TxID()))
	}
	heap.Push((*txHeap)(q), &txItem{trans: trans})
}

// Remove unschedules a transaction by id; returns whether it was queued.
func (q *TxQueue) Remove(txid TxId) bool {
	item, ok := q.itemNr[txid]
	if !ok {
		return false
	}
	heap.Remove((*txHeap)(q), item.index)
	return true
}

// Front returns the lowest-id transaction without removing it.
func (q *TxQueue) Front() Transaction {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0].trans
}

// PopFront removes and returns the lowest-id transaction.
func (q *TxQueue) PopFront() Transaction {
	item := heap.Pop((*txHeap)(q)).(*txItem)
	return item.trans
}

// HeadScore returns the id of the head; only valid on a non-empty queue.
func (q *TxQueue) HeadScore() TxId {
	return q.items[0].trans.TxID()
}

// Contains reports whether a transaction id is queued.
func (q *TxQueue) Contains(txid TxId) bool {
	_, ok := q.itemNr[txid]
	return ok
}

// Empty reports whether the queue holds no transactions.
func (q *TxQueue) Empty() bool {
	return len(q.items) == 0
}

// Size returns the number of queued transactions.
func (q *TxQueue) Size() int {
	return len(q.items)
}
