package bptree

import (
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
)

// Transaction carries the per-operation scratchpads a traversal needs: the
// ordered set of ancestor guards still latched, and the pages queued for
// deletion once the operation ends. One instance serves one operation; it is
// not shared across goroutines.
type Transaction struct {
	pageSet        []*buffer_pool.WritePageGuard
	deletedPageSet map[common.PageNo]struct{}
}

// NewTransaction creates empty scratchpads.
func NewTransaction() *Transaction {
	return &Transaction{
		deletedPageSet: make(map[common.PageNo]struct{}),
	}
}

// AddIntoPageSet appends an ancestor guard, keeping path order.
func (txn *Transaction) AddIntoPageSet(guard *buffer_pool.WritePageGuard) {
	txn.pageSet = append(txn.pageSet, guard)
}

// GetPageSet returns the latched ancestors in path order.
func (txn *Transaction) GetPageSet() []*buffer_pool.WritePageGuard {
	return txn.pageSet
}

// ClearPageSet forgets the ancestors. Callers drop the guards first.
func (txn *Transaction) ClearPageSet() {
	txn.pageSet = txn.pageSet[:0]
}

// AddIntoDeletedPageSet queues a page for deletion after the operation.
func (txn *Transaction) AddIntoDeletedPageSet(pageNo common.PageNo) {
	txn.deletedPageSet[pageNo] = struct{}{}
}

// GetDeletedPageSet returns the queued page numbers.
func (txn *Transaction) GetDeletedPageSet() map[common.PageNo]struct{} {
	return txn.deletedPageSet
}

// ClearDeletedPageSet empties the deletion queue.
func (txn *Transaction) ClearDeletedPageSet() {
	for pageNo := range txn.deletedPageSet {
		delete(txn.deletedPageSet, pageNo)
	}
}
