package bptree

import (
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
)

// InternalPage views a frame as an internal node: entries of (key, child
// page). The key in slot 0 is a don't-care; the child in slot i holds keys
// >= key i and < key i+1. Moving entries between internal nodes re-parents
// the transferred children through the buffer pool.
type InternalPage struct {
	BPlusTreePage
}

// AsInternalPage wraps a frame in the internal view.
func AsInternalPage(page *buffer_pool.Page) *InternalPage {
	return &InternalPage{BPlusTreePage{page: page}}
}

// Init formats the frame as an empty internal node.
func (n *InternalPage) Init(pageNo common.PageNo, parentPageNo common.PageNo, maxSize int) {
	n.SetPageType(IndexPageTypeInternal)
	n.SetPageNo(pageNo)
	n.SetParentPageNo(parentPageNo)
	n.SetSize(0)
	n.SetMaxSize(maxSize)
}

func (n *InternalPage) entryOff(index int) int {
	return offEntries + index*internalEntrySize
}

// KeyAt returns the key at the given slot.
func (n *InternalPage) KeyAt(index int) common.Key {
	return readInt64(n.data(), n.entryOff(index))
}

// SetKeyAt stores a key into the given slot.
func (n *InternalPage) SetKeyAt(index int, key common.Key) {
	writeInt64(n.data(), n.entryOff(index), key)
}

// ValueAt returns the child page at the given slot.
func (n *InternalPage) ValueAt(index int) common.PageNo {
	return common.PageNo(readInt64(n.data(), n.entryOff(index)+8))
}

// SetValueAt stores a child page into the given slot.
func (n *InternalPage) SetValueAt(index int, pageNo common.PageNo) {
	writeInt64(n.data(), n.entryOff(index)+8, int64(pageNo))
}

func (n *InternalPage) setItem(index int, key common.Key, pageNo common.PageNo) {
	n.SetKeyAt(index, key)
	n.SetValueAt(index, pageNo)
}

// ValueIndex linearly searches for a child page, returning -1 when absent.
func (n *InternalPage) ValueIndex(pageNo common.PageNo) int {
	for i := 0; i < n.GetSize(); i++ {
		if n.ValueAt(i) == pageNo {
			return i
		}
	}
	return -1
}

// Lookup returns the child whose subtree must contain key: binary search
// for the smallest slot above 0 whose key exceeds key, then take the child
// to its left. Slot 0's key is never consulted.
func (n *InternalPage) Lookup(key common.Key) common.PageNo {
	left := 1
	right := n.GetSize() - 1
	for left <= right {
		mid := left + (right-left)>>1
		if n.KeyAt(mid) > key {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return n.ValueAt(left - 1)
}

// PopulateNewRoot turns an empty node into a two-child root.
func (n *InternalPage) PopulateNewRoot(oldPageNo common.PageNo, key common.Key, newPageNo common.PageNo) {
	n.SetValueAt(0, oldPageNo)
	n.setItem(1, key, newPageNo)
	n.SetSize(2)
}

// InsertNodeAfter places (key, newPageNo) right after the slot holding
// oldPageNo and returns the new size.
func (n *InternalPage) InsertNodeAfter(oldPageNo common.PageNo, key common.Key, newPageNo common.PageNo) int {
	index := n.ValueIndex(oldPageNo) + 1
	size := n.GetSize()

	data := n.data()
	copy(data[n.entryOff(index+1):n.entryOff(size+1)], data[n.entryOff(index):n.entryOff(size)])
	n.setItem(index, key, newPageNo)
	n.IncreaseSize(1)
	return n.GetSize()
}

// Remove deletes the entry at the given slot.
func (n *InternalPage) Remove(index int) {
	size := n.GetSize()
	data := n.data()
	copy(data[n.entryOff(index):n.entryOff(size-1)], data[n.entryOff(index+1):n.entryOff(size)])
	n.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild empties a single-child root and returns that
// child.
func (n *InternalPage) RemoveAndReturnOnlyChild() common.PageNo {
	n.SetSize(0)
	return n.ValueAt(0)
}

// MoveHalfTo moves the upper half of the entries to an empty right sibling,
// re-parenting the transferred children.
func (n *InternalPage) MoveHalfTo(recipient *InternalPage, bpm *buffer_pool.BufferPoolManager) error {
	start := n.GetMinSize()
	moveNum := n.GetSize() - start
	if err := recipient.copyNFrom(n.data()[n.entryOff(start):n.entryOff(start+moveNum)], moveNum, bpm); err != nil {
		return err
	}
	n.IncreaseSize(-moveNum)
	return nil
}

// MoveAllTo appends every entry to the recipient, materializing the
// in-parent separator into slot 0 first.
func (n *InternalPage) MoveAllTo(recipient *InternalPage, middleKey common.Key, bpm *buffer_pool.BufferPoolManager) error {
	n.SetKeyAt(0, middleKey)
	if err := recipient.copyNFrom(n.data()[n.entryOff(0):n.entryOff(n.GetSize())], n.GetSize(), bpm); err != nil {
		return err
	}
	n.SetSize(0)
	return nil
}

// MoveFirstToEndOf shifts this node's first entry onto the recipient's end,
// keyed by the in-parent separator.
func (n *InternalPage) MoveFirstToEndOf(recipient *InternalPage, middleKey common.Key, bpm *buffer_pool.BufferPoolManager) error {
	n.SetKeyAt(0, middleKey)
	if err := recipient.CopyLastFrom(n.KeyAt(0), n.ValueAt(0), bpm); err != nil {
		return err
	}
	n.Remove(0)
	return nil
}

// MoveLastToFrontOf shifts this node's last entry onto the recipient's
// front; the separator key lands in the recipient's old slot 0.
func (n *InternalPage) MoveLastToFrontOf(recipient *InternalPage, middleKey common.Key, bpm *buffer_pool.BufferPoolManager) error {
	recipient.SetKeyAt(0, middleKey)
	last := n.GetSize() - 1
	if err := recipient.CopyFirstFrom(n.KeyAt(last), n.ValueAt(last), bpm); err != nil {
		return err
	}
	n.IncreaseSize(-1)
	return nil
}

// CopyLastFrom appends one entry and adopts its child.
func (n *InternalPage) CopyLastFrom(key common.Key, pageNo common.PageNo, bpm *buffer_pool.BufferPoolManager) error {
	n.setItem(n.GetSize(), key, pageNo)
	if err := n.adoptChild(pageNo, bpm); err != nil {
		return err
	}
	n.IncreaseSize(1)
	return nil
}

// CopyFirstFrom prepends one entry, shifting the rest right, and adopts its
// child.
func (n *InternalPage) CopyFirstFrom(key common.Key, pageNo common.PageNo, bpm *buffer_pool.BufferPoolManager) error {
	size := n.GetSize()
	data := n.data()
	copy(data[n.entryOff(1):n.entryOff(size+1)], data[n.entryOff(0):n.entryOff(size)])
	n.setItem(0, key, pageNo)
	if err := n.adoptChild(pageNo, bpm); err != nil {
		return err
	}
	n.IncreaseSize(1)
	return nil
}

func (n *InternalPage) copyNFrom(items []byte, moveNum int, bpm *buffer_pool.BufferPoolManager) error {
	size := n.GetSize()
	copy(n.data()[n.entryOff(size):n.entryOff(size+moveNum)], items)
	for i := size; i < size+moveNum; i++ {
		if err := n.adoptChild(n.ValueAt(i), bpm); err != nil {
			return err
		}
	}
	n.IncreaseSize(moveNum)
	return nil
}

// adoptChild rewrites a transferred child's parent back-reference.
func (n *InternalPage) adoptChild(childPageNo common.PageNo, bpm *buffer_pool.BufferPoolManager) error {
	childGuard, err := bpm.FetchPageBasic(childPageNo)
	if err != nil {
		return err
	}
	AsTreePage(childGuard.Page()).SetParentPageNo(n.GetPageNo())
	childGuard.SetDirty()
	childGuard.Drop()
	return nil
}
