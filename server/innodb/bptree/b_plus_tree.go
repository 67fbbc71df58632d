package bptree

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/zhukovaskychina/xmysql-storage/logger"
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/latch"
)

type opType int

const (
	opFind opType = iota
	opInsert
	opDelete
)

// BPlusTree is a concurrent B+tree index over the buffer pool. Readers
// couple one shared latch at a time down the path; writers keep the
// exclusive latches of every ancestor that might still change, releasing
// them the moment the descent reaches a node that absorbs the change. The
// root latch serializes anything that may move root_page_no.
type BPlusTree struct {
	bpm             *buffer_pool.BufferPoolManager
	headerPageNo    common.PageNo
	leafMaxSize     int
	internalMaxSize int

	rootLatch *latch.Latch
}

// NewBPlusTree opens the index stored under headerPageNo, initializing the
// header on a fresh file. Node capacities are validated against the page
// size.
func NewBPlusTree(bpm *buffer_pool.BufferPoolManager, headerPageNo common.PageNo, leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	if leafMaxSize < 3 || internalMaxSize < 3 {
		return nil, pkgerrors.Errorf("node capacity too small: leaf %d, internal %d", leafMaxSize, internalMaxSize)
	}
	pageSize := bpm.PageSize()
	if offEntries+leafMaxSize*leafEntrySize > pageSize {
		return nil, pkgerrors.Errorf("leaf_max_size %d does not fit a %d byte page", leafMaxSize, pageSize)
	}
	if offEntries+(internalMaxSize+1)*internalEntrySize > pageSize {
		return nil, pkgerrors.Errorf("internal_max_size %d does not fit a %d byte page", internalMaxSize, pageSize)
	}

	tree := &BPlusTree{
		bpm:             bpm,
		headerPageNo:    headerPageNo,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootLatch:       latch.NewLatch(),
	}

	guard, err := bpm.FetchPageWrite(headerPageNo)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open index header")
	}
	header := AsHeaderPage(guard.Page())
	if header.GetMagic() != headerPageMagic {
		header.SetMagic(headerPageMagic)
		header.SetRootPageNo(common.INVALID_PAGE_NO)
		guard.SetDirty()
		logger.Debugf("initialized index header on page %d", headerPageNo)
	}
	guard.Drop()

	return tree, nil
}

// IsEmpty reports whether the tree holds no keys.
func (t *BPlusTree) IsEmpty() (bool, error) {
	root, err := t.GetRootPageNo()
	if err != nil {
		return false, err
	}
	return root == common.INVALID_PAGE_NO, nil
}

// GetRootPageNo reads the persistent root reference.
func (t *BPlusTree) GetRootPageNo() (common.PageNo, error) {
	guard, err := t.bpm.FetchPageRead(t.headerPageNo)
	if err != nil {
		return common.INVALID_PAGE_NO, err
	}
	root := AsHeaderPage(guard.Page()).GetRootPageNo()
	guard.Drop()
	return root, nil
}

func (t *BPlusTree) updateRootPageNo(pageNo common.PageNo) error {
	guard, err := t.bpm.FetchPageWrite(t.headerPageNo)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to update index header")
	}
	AsHeaderPage(guard.Page()).SetRootPageNo(pageNo)
	guard.SetDirty()
	guard.Drop()
	return nil
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue looks a key up, returning its RID and whether it exists.
func (t *BPlusTree) GetValue(key common.Key) (common.RID, bool, error) {
	guard, err := t.findLeafRead(key, false, false)
	if err != nil {
		return common.RID{}, false, err
	}
	if guard == nil {
		return common.RID{}, false, nil
	}

	leaf := AsLeafPage(guard.Page())
	rid, ok := leaf.Lookup(key)
	guard.Drop()
	return rid, ok, nil
}

// findLeafRead descends with shared latch coupling to the leaf that should
// contain key (or the chain's first/last leaf). A nil guard means the tree
// is empty.
func (t *BPlusTree) findLeafRead(key common.Key, leftMost, rightMost bool) (*buffer_pool.ReadPageGuard, error) {
	t.rootLatch.Lock()

	root, err := t.GetRootPageNo()
	if err != nil {
		t.rootLatch.Unlock()
		return nil, err
	}
	if root == common.INVALID_PAGE_NO {
		t.rootLatch.Unlock()
		return nil, nil
	}

	guard, err := t.bpm.FetchPageRead(root)
	if err != nil {
		t.rootLatch.Unlock()
		return nil, err
	}
	t.rootLatch.Unlock()

	for !AsTreePage(guard.Page()).IsLeafPage() {
		node := AsInternalPage(guard.Page())

		var childPageNo common.PageNo
		switch {
		case leftMost:
			childPageNo = node.ValueAt(0)
		case rightMost:
			childPageNo = node.ValueAt(node.GetSize() - 1)
		default:
			childPageNo = node.Lookup(key)
		}

		childGuard, err := t.bpm.FetchPageRead(childPageNo)
		if err != nil {
			guard.Drop()
			return nil, err
		}
		guard.Drop()
		guard = childGuard
	}

	return guard, nil
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert adds (key, rid), returning false on a duplicate key. The tree is
// started fresh when empty.
func (t *BPlusTree) Insert(key common.Key, rid common.RID, txn *Transaction) (bool, error) {
	t.rootLatch.Lock()

	root, err := t.GetRootPageNo()
	if err != nil {
		t.rootLatch.Unlock()
		return false, err
	}

	if root == common.INVALID_PAGE_NO {
		err := t.startNewTree(key, rid)
		t.rootLatch.Unlock()
		return err == nil, err
	}

	leafGuard, rootLatched, err := t.findLeafForWrite(key, opInsert, txn, root)
	if err != nil {
		return false, err
	}

	leaf := AsLeafPage(leafGuard.Page())
	size := leaf.GetSize()
	newSize := leaf.Insert(key, rid)

	if newSize == size {
		t.finishWrite(txn, &rootLatched)
		leafGuard.Drop()
		return false, nil
	}
	leafGuard.SetDirty()

	if newSize < leaf.GetMaxSize() {
		t.finishWrite(txn, &rootLatched)
		leafGuard.Drop()
		return true, nil
	}

	newLeafGuard, err := t.splitLeaf(leaf)
	if err != nil {
		t.finishWrite(txn, &rootLatched)
		leafGuard.Drop()
		return false, err
	}
	newLeaf := AsLeafPage(newLeafGuard.Page())

	err = t.insertIntoParent(AsTreePage(leafGuard.Page()), newLeaf.KeyAt(0), AsTreePage(newLeafGuard.Page()), txn, &rootLatched)
	newLeafGuard.Drop()
	leafGuard.Drop()
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *BPlusTree) startNewTree(key common.Key, rid common.RID) error {
	guard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to start a new tree")
	}

	leaf := AsLeafPage(guard.Page())
	leaf.Init(guard.PageNo(), common.INVALID_PAGE_NO, t.leafMaxSize)
	leaf.Insert(key, rid)
	guard.SetDirty()

	err = t.updateRootPageNo(guard.PageNo())
	logger.Debugf("started new tree with root leaf %d", guard.PageNo())
	guard.Drop()
	return err
}

// splitLeaf allocates a right sibling, moves the upper half over and
// splices it into the leaf chain. The new page comes back pinned and
// dirty; it is invisible to other threads until the parent insert links it.
func (t *BPlusTree) splitLeaf(leaf *LeafPage) (*buffer_pool.BasicPageGuard, error) {
	guard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to split leaf")
	}

	newLeaf := AsLeafPage(guard.Page())
	newLeaf.Init(guard.PageNo(), leaf.GetParentPageNo(), t.leafMaxSize)
	leaf.MoveHalfTo(newLeaf)
	newLeaf.SetNextPageNo(leaf.GetNextPageNo())
	leaf.SetNextPageNo(newLeaf.GetPageNo())

	guard.SetDirty()
	logger.Debugf("split leaf %d, new sibling %d", leaf.GetPageNo(), newLeaf.GetPageNo())
	return guard, nil
}

func (t *BPlusTree) splitInternal(node *InternalPage) (*buffer_pool.BasicPageGuard, error) {
	guard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to split internal node")
	}

	newNode := AsInternalPage(guard.Page())
	newNode.Init(guard.PageNo(), node.GetParentPageNo(), t.internalMaxSize)
	if err := node.MoveHalfTo(newNode, t.bpm); err != nil {
		guard.Drop()
		return nil, err
	}

	guard.SetDirty()
	logger.Debugf("split internal node %d, new sibling %d", node.GetPageNo(), newNode.GetPageNo())
	return guard, nil
}

// insertIntoParent links a freshly split node into the tree, splitting
// upward as long as parents overflow. All remaining latches are released
// before it returns.
func (t *BPlusTree) insertIntoParent(old *BPlusTreePage, key common.Key, newNode *BPlusTreePage, txn *Transaction, rootLatched *bool) error {
	if old.IsRootPage() {
		guard, err := t.bpm.NewPageGuarded()
		if err != nil {
			t.finishWrite(txn, rootLatched)
			return pkgerrors.Wrap(err, "failed to grow a new root")
		}

		newRoot := AsInternalPage(guard.Page())
		newRoot.Init(guard.PageNo(), common.INVALID_PAGE_NO, t.internalMaxSize)
		newRoot.PopulateNewRoot(old.GetPageNo(), key, newNode.GetPageNo())
		old.SetParentPageNo(guard.PageNo())
		newNode.SetParentPageNo(guard.PageNo())
		guard.SetDirty()

		err = t.updateRootPageNo(guard.PageNo())
		logger.Debugf("grew new root %d over %d and %d", guard.PageNo(), old.GetPageNo(), newNode.GetPageNo())
		guard.Drop()
		t.finishWrite(txn, rootLatched)
		return err
	}

	// The parent sits in the page set, already latched by this traversal;
	// a pin-only guard re-enters it without self-deadlock.
	parentGuard, err := t.bpm.FetchPageBasic(old.GetParentPageNo())
	if err != nil {
		t.finishWrite(txn, rootLatched)
		return pkgerrors.Wrap(err, "failed to re-enter parent node")
	}
	parent := AsInternalPage(parentGuard.Page())

	parent.InsertNodeAfter(old.GetPageNo(), key, newNode.GetPageNo())
	parentGuard.SetDirty()

	if parent.GetSize() < parent.GetMaxSize() {
		t.finishWrite(txn, rootLatched)
		parentGuard.Drop()
		return nil
	}

	newParentGuard, err := t.splitInternal(parent)
	if err != nil {
		t.finishWrite(txn, rootLatched)
		parentGuard.Drop()
		return err
	}
	newParent := AsInternalPage(newParentGuard.Page())

	err = t.insertIntoParent(AsTreePage(parentGuard.Page()), newParent.KeyAt(0), AsTreePage(newParentGuard.Page()), txn, rootLatched)
	newParentGuard.Drop()
	parentGuard.Drop()
	return err
}

/*****************************************************************************
 * REMOVAL
 *****************************************************************************/

// Remove deletes key's entry when present. Underflow merges or
// redistributes bottom-up; pages emptied along the way are returned to the
// pool once every latch is released.
func (t *BPlusTree) Remove(key common.Key, txn *Transaction) error {
	t.rootLatch.Lock()

	root, err := t.GetRootPageNo()
	if err != nil {
		t.rootLatch.Unlock()
		return err
	}
	if root == common.INVALID_PAGE_NO {
		t.rootLatch.Unlock()
		return nil
	}

	leafGuard, rootLatched, err := t.findLeafForWrite(key, opDelete, txn, root)
	if err != nil {
		return err
	}

	leaf := AsLeafPage(leafGuard.Page())
	oldSize := leaf.GetSize()
	if leaf.RemoveAndDeleteRecord(key) == oldSize {
		t.finishWrite(txn, &rootLatched)
		leafGuard.Drop()
		return nil
	}
	leafGuard.SetDirty()

	err = t.coalesceOrRedistribute(AsTreePage(leafGuard.Page()), txn, &rootLatched)
	leafGuard.Drop()

	for pageNo := range txn.GetDeletedPageSet() {
		if !t.bpm.DeletePage(pageNo) {
			logger.Debugf("page %d still pinned after remove, leaving it resident", pageNo)
		}
	}
	txn.ClearDeletedPageSet()

	return err
}

// coalesceOrRedistribute restores the fill floor for an underflowing node.
// On every return path the ancestor latches and the root latch are
// released.
func (t *BPlusTree) coalesceOrRedistribute(node *BPlusTreePage, txn *Transaction, rootLatched *bool) error {
	if node.IsRootPage() {
		err := t.adjustRoot(node, txn)
		t.finishWrite(txn, rootLatched)
		return err
	}

	if node.GetSize() >= node.GetMinSize() {
		t.finishWrite(txn, rootLatched)
		return nil
	}

	parentGuard, err := t.bpm.FetchPageBasic(node.GetParentPageNo())
	if err != nil {
		t.finishWrite(txn, rootLatched)
		return pkgerrors.Wrap(err, "failed to re-enter parent node")
	}
	parent := AsInternalPage(parentGuard.Page())

	index := parent.ValueIndex(node.GetPageNo())
	siblingIndex := index - 1
	if index == 0 {
		siblingIndex = 1
	}
	siblingGuard, err := t.bpm.FetchPageWrite(parent.ValueAt(siblingIndex))
	if err != nil {
		parentGuard.Drop()
		t.finishWrite(txn, rootLatched)
		return pkgerrors.Wrap(err, "failed to latch sibling node")
	}
	sibling := AsTreePage(siblingGuard.Page())

	if node.GetSize()+sibling.GetSize() >= node.GetMaxSize() {
		err := t.redistribute(sibling, node, parent, index)
		t.finishWrite(txn, rootLatched)
		parentGuard.SetDirty()
		parentGuard.Drop()
		siblingGuard.SetDirty()
		siblingGuard.Drop()
		return err
	}

	// Merge right into left; when the underflowing node is leftmost, its
	// right sibling is the one emptied.
	left, right := sibling, node
	keyIndex := index
	if index == 0 {
		left, right = node, sibling
		keyIndex = 1
	}
	middleKey := parent.KeyAt(keyIndex)

	if node.IsLeafPage() {
		leftLeaf := AsLeafPage(left.Page())
		rightLeaf := AsLeafPage(right.Page())
		rightLeaf.MoveAllTo(leftLeaf)
		leftLeaf.SetNextPageNo(rightLeaf.GetNextPageNo())
	} else {
		if err := AsInternalPage(right.Page()).MoveAllTo(AsInternalPage(left.Page()), middleKey, t.bpm); err != nil {
			parentGuard.Drop()
			siblingGuard.Drop()
			t.finishWrite(txn, rootLatched)
			return err
		}
	}

	parent.Remove(keyIndex)
	txn.AddIntoDeletedPageSet(right.GetPageNo())
	logger.Debugf("coalesced page %d into page %d", right.GetPageNo(), left.GetPageNo())

	parentGuard.SetDirty()
	siblingGuard.SetDirty()

	err = t.coalesceOrRedistribute(AsTreePage(parentGuard.Page()), txn, rootLatched)
	parentGuard.Drop()
	siblingGuard.Drop()
	return err
}

// redistribute moves exactly one entry from the sibling into the
// underflowing node and refreshes the parent's separator key.
func (t *BPlusTree) redistribute(sibling, node *BPlusTreePage, parent *InternalPage, index int) error {
	if node.IsLeafPage() {
		leafNode := AsLeafPage(node.Page())
		leafSibling := AsLeafPage(sibling.Page())
		if index == 0 {
			leafSibling.MoveFirstToEndOf(leafNode)
			parent.SetKeyAt(1, leafSibling.KeyAt(0))
		} else {
			leafSibling.MoveLastToFrontOf(leafNode)
			parent.SetKeyAt(index, leafNode.KeyAt(0))
		}
		return nil
	}

	internalNode := AsInternalPage(node.Page())
	internalSibling := AsInternalPage(sibling.Page())
	if index == 0 {
		if err := internalSibling.MoveFirstToEndOf(internalNode, parent.KeyAt(1), t.bpm); err != nil {
			return err
		}
		parent.SetKeyAt(1, internalSibling.KeyAt(0))
	} else {
		if err := internalSibling.MoveLastToFrontOf(internalNode, parent.KeyAt(index), t.bpm); err != nil {
			return err
		}
		parent.SetKeyAt(index, internalNode.KeyAt(0))
	}
	return nil
}

// adjustRoot handles the two root-only underflow shapes: an internal root
// down to one child hands the tree to that child; an emptied leaf root
// empties the tree.
func (t *BPlusTree) adjustRoot(root *BPlusTreePage, txn *Transaction) error {
	if !root.IsLeafPage() && root.GetSize() == 1 {
		childPageNo := AsInternalPage(root.Page()).RemoveAndReturnOnlyChild()

		if err := t.updateRootPageNo(childPageNo); err != nil {
			return err
		}

		// The surviving child is still latched by this traversal.
		childGuard, err := t.bpm.FetchPageBasic(childPageNo)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to re-enter new root")
		}
		AsTreePage(childGuard.Page()).SetParentPageNo(common.INVALID_PAGE_NO)
		childGuard.SetDirty()
		childGuard.Drop()

		txn.AddIntoDeletedPageSet(root.GetPageNo())
		logger.Debugf("collapsed root %d into child %d", root.GetPageNo(), childPageNo)
		return nil
	}

	if root.IsLeafPage() && root.GetSize() == 0 {
		if err := t.updateRootPageNo(common.INVALID_PAGE_NO); err != nil {
			return err
		}
		txn.AddIntoDeletedPageSet(root.GetPageNo())
		logger.Debugf("removed last key, tree is empty")
		return nil
	}

	return nil
}

/*****************************************************************************
 * TRAVERSAL
 *****************************************************************************/

// findLeafForWrite descends with exclusive crabbing: every node on the path
// stays latched in the transaction's page set until a child proves safe for
// the operation. Caller holds the root latch; the returned flag reports
// whether it is still held.
func (t *BPlusTree) findLeafForWrite(key common.Key, op opType, txn *Transaction, root common.PageNo) (*buffer_pool.WritePageGuard, bool, error) {
	rootLatched := true

	guard, err := t.bpm.FetchPageWrite(root)
	if err != nil {
		t.rootLatch.Unlock()
		return nil, false, err
	}
	node := AsTreePage(guard.Page())
	if t.isSafe(node, op) {
		rootLatched = false
		t.rootLatch.Unlock()
	}

	for !node.IsLeafPage() {
		internal := AsInternalPage(guard.Page())
		childPageNo := internal.Lookup(key)

		childGuard, err := t.bpm.FetchPageWrite(childPageNo)
		if err != nil {
			if rootLatched {
				t.rootLatch.Unlock()
			}
			t.releasePageSet(txn)
			guard.Drop()
			return nil, false, err
		}
		txn.AddIntoPageSet(guard)

		childNode := AsTreePage(childGuard.Page())
		if t.isSafe(childNode, op) {
			if rootLatched {
				rootLatched = false
				t.rootLatch.Unlock()
			}
			t.releasePageSet(txn)
		}

		guard = childGuard
		node = childNode
	}

	return guard, rootLatched, nil
}

// isSafe reports whether the operation cannot propagate a structural change
// past this node.
func (t *BPlusTree) isSafe(node *BPlusTreePage, op opType) bool {
	if node.IsRootPage() {
		switch op {
		case opInsert:
			return node.GetSize() < node.GetMaxSize()-1
		case opDelete:
			return node.GetSize() > 2
		}
		return true
	}

	switch op {
	case opInsert:
		return node.GetSize() < node.GetMaxSize()-1
	case opDelete:
		return node.GetSize() > node.GetMinSize()
	}
	return true
}

// releasePageSet drops every ancestor guard, oldest first.
func (t *BPlusTree) releasePageSet(txn *Transaction) {
	for _, guard := range txn.GetPageSet() {
		guard.Drop()
	}
	txn.ClearPageSet()
}

// finishWrite releases the root latch when still held, then the ancestor
// set.
func (t *BPlusTree) finishWrite(txn *Transaction, rootLatched *bool) {
	if *rootLatched {
		*rootLatched = false
		t.rootLatch.Unlock()
	}
	t.releasePageSet(txn)
}
