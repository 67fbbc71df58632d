package bptree

import (
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
)

// LeafPage views a frame as a leaf node: a sorted run of (key, RID) entries
// plus the sibling link that forms the leaf chain.
type LeafPage struct {
	BPlusTreePage
}

// AsLeafPage wraps a frame in the leaf view.
func AsLeafPage(page *buffer_pool.Page) *LeafPage {
	return &LeafPage{BPlusTreePage{page: page}}
}

// Init formats the frame as an empty leaf.
func (l *LeafPage) Init(pageNo common.PageNo, parentPageNo common.PageNo, maxSize int) {
	l.SetPageType(IndexPageTypeLeaf)
	l.SetPageNo(pageNo)
	l.SetParentPageNo(parentPageNo)
	l.SetSize(0)
	l.SetMaxSize(maxSize)
	l.SetNextPageNo(common.INVALID_PAGE_NO)
}

// GetNextPageNo returns the right sibling, INVALID_PAGE_NO at the chain
// tail.
func (l *LeafPage) GetNextPageNo() common.PageNo {
	return common.PageNo(readInt64(l.data(), offNextLeaf))
}

// SetNextPageNo stores the right sibling link.
func (l *LeafPage) SetNextPageNo(pageNo common.PageNo) {
	writeInt64(l.data(), offNextLeaf, int64(pageNo))
}

func (l *LeafPage) entryOff(index int) int {
	return offEntries + index*leafEntrySize
}

// KeyAt returns the key at the given slot.
func (l *LeafPage) KeyAt(index int) common.Key {
	return readInt64(l.data(), l.entryOff(index))
}

// ValueAt returns the RID at the given slot.
func (l *LeafPage) ValueAt(index int) common.RID {
	off := l.entryOff(index)
	return common.RID{
		PageNo: common.PageNo(readInt64(l.data(), off+8)),
		SlotNo: readInt32(l.data(), off+16),
	}
}

// GetItem returns the (key, RID) pair at the given slot.
func (l *LeafPage) GetItem(index int) (common.Key, common.RID) {
	return l.KeyAt(index), l.ValueAt(index)
}

func (l *LeafPage) setItem(index int, key common.Key, rid common.RID) {
	off := l.entryOff(index)
	writeInt64(l.data(), off, key)
	writeInt64(l.data(), off+8, int64(rid.PageNo))
	writeInt32(l.data(), off+16, rid.SlotNo)
	writeInt32(l.data(), off+20, 0)
}

// KeyIndex binary-searches for the smallest slot whose key is >= key,
// returning the size when every key is smaller.
func (l *LeafPage) KeyIndex(key common.Key) int {
	left := 0
	right := l.GetSize() - 1
	for left <= right {
		mid := left + (right-left)>>1
		if l.KeyAt(mid) >= key {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return right + 1
}

// Lookup returns the RID stored under key.
func (l *LeafPage) Lookup(key common.Key) (common.RID, bool) {
	index := l.KeyIndex(key)
	if index == l.GetSize() || l.KeyAt(index) != key {
		return common.RID{}, false
	}
	return l.ValueAt(index), true
}

// Insert places (key, rid) at its sorted slot and returns the new size.
// A duplicate key leaves the leaf untouched and returns the current size.
func (l *LeafPage) Insert(key common.Key, rid common.RID) int {
	size := l.GetSize()
	index := l.KeyIndex(key)
	if index < size && l.KeyAt(index) == key {
		return size
	}

	data := l.data()
	copy(data[l.entryOff(index+1):l.entryOff(size+1)], data[l.entryOff(index):l.entryOff(size)])
	l.setItem(index, key, rid)
	l.IncreaseSize(1)
	return l.GetSize()
}

// RemoveAndDeleteRecord deletes key's entry when present and returns the
// new size; an absent key returns the size unchanged.
func (l *LeafPage) RemoveAndDeleteRecord(key common.Key) int {
	size := l.GetSize()
	index := l.KeyIndex(key)
	if index == size || l.KeyAt(index) != key {
		return size
	}

	data := l.data()
	copy(data[l.entryOff(index):l.entryOff(size-1)], data[l.entryOff(index+1):l.entryOff(size)])
	l.IncreaseSize(-1)
	return l.GetSize()
}

// MoveHalfTo moves the upper half of the entries to an empty right sibling.
func (l *LeafPage) MoveHalfTo(recipient *LeafPage) {
	start := l.GetMinSize()
	moveNum := l.GetSize() - start
	recipient.copyNFrom(l.data()[l.entryOff(start):l.entryOff(start+moveNum)], moveNum)
	l.IncreaseSize(-moveNum)
}

// MoveAllTo appends every entry to the recipient. The caller rewires the
// sibling chain.
func (l *LeafPage) MoveAllTo(recipient *LeafPage) {
	recipient.copyNFrom(l.data()[l.entryOff(0):l.entryOff(l.GetSize())], l.GetSize())
	l.SetSize(0)
}

// MoveFirstToEndOf shifts this leaf's first entry onto the recipient's end.
func (l *LeafPage) MoveFirstToEndOf(recipient *LeafPage) {
	key, rid := l.GetItem(0)
	recipient.CopyLastFrom(key, rid)

	size := l.GetSize()
	data := l.data()
	copy(data[l.entryOff(0):l.entryOff(size-1)], data[l.entryOff(1):l.entryOff(size)])
	l.IncreaseSize(-1)
}

// MoveLastToFrontOf shifts this leaf's last entry onto the recipient's
// front.
func (l *LeafPage) MoveLastToFrontOf(recipient *LeafPage) {
	key, rid := l.GetItem(l.GetSize() - 1)
	recipient.CopyFirstFrom(key, rid)
	l.IncreaseSize(-1)
}

// CopyLastFrom appends one entry.
func (l *LeafPage) CopyLastFrom(key common.Key, rid common.RID) {
	l.setItem(l.GetSize(), key, rid)
	l.IncreaseSize(1)
}

// CopyFirstFrom prepends one entry, shifting the rest right.
func (l *LeafPage) CopyFirstFrom(key common.Key, rid common.RID) {
	size := l.GetSize()
	data := l.data()
	copy(data[l.entryOff(1):l.entryOff(size+1)], data[l.entryOff(0):l.entryOff(size)])
	l.setItem(0, key, rid)
	l.IncreaseSize(1)
}

func (l *LeafPage) copyNFrom(items []byte, n int) {
	size := l.GetSize()
	copy(l.data()[l.entryOff(size):l.entryOff(size+n)], items)
	l.IncreaseSize(n)
}
