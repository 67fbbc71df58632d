package bptree

import (
	"encoding/binary"

	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
)

// IndexPageType tags a node page as internal or leaf.
type IndexPageType uint16

const (
	IndexPageTypeInvalid  IndexPageType = 0
	IndexPageTypeInternal IndexPageType = 1
	IndexPageTypeLeaf     IndexPageType = 2
)

// Node page layout, after the disk layer's checksum prologue:
//
//	+0  page type    uint16
//	+2  reserved     uint16
//	+4  size         int32
//	+8  max size     int32
//	+12 page no      int64
//	+20 parent       int64
//	+28 next leaf    int64 (leaves only)
//	+36 entry array
//
// Leaf entries are 24 bytes: key int64, rid page int64, rid slot int32, pad.
// Internal entries are 16 bytes: key int64, child page int64. The internal
// array keeps one slot of slack past max size so an insert-then-split and
// a front shift never run off the end.
const (
	offPageType = common.FIL_PROLOGUE_SIZE + 0
	offSize     = common.FIL_PROLOGUE_SIZE + 4
	offMaxSize  = common.FIL_PROLOGUE_SIZE + 8
	offPageNo   = common.FIL_PROLOGUE_SIZE + 12
	offParent   = common.FIL_PROLOGUE_SIZE + 20
	offNextLeaf = common.FIL_PROLOGUE_SIZE + 28
	offEntries  = common.FIL_PROLOGUE_SIZE + 36

	leafEntrySize     = 24
	internalEntrySize = 16
)

func readInt64(data []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(data[off:]))
}

func writeInt64(data []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(data[off:], uint64(v))
}

func readInt32(data []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(data[off:]))
}

func writeInt32(data []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(data[off:], uint32(v))
}

// BPlusTreePage is the header view shared by internal and leaf nodes.
// Views hold no state of their own; every accessor reads the frame.
type BPlusTreePage struct {
	page *buffer_pool.Page
}

// AsTreePage wraps a frame in the shared header view.
func AsTreePage(page *buffer_pool.Page) *BPlusTreePage {
	return &BPlusTreePage{page: page}
}

// Page returns the underlying frame.
func (n *BPlusTreePage) Page() *buffer_pool.Page {
	return n.page
}

func (n *BPlusTreePage) data() []byte {
	return n.page.Data()
}

// GetPageType returns the node's type tag.
func (n *BPlusTreePage) GetPageType() IndexPageType {
	return IndexPageType(binary.LittleEndian.Uint16(n.data()[offPageType:]))
}

// SetPageType stores the node's type tag.
func (n *BPlusTreePage) SetPageType(pageType IndexPageType) {
	binary.LittleEndian.PutUint16(n.data()[offPageType:], uint16(pageType))
}

// IsLeafPage reports whether the node is a leaf.
func (n *BPlusTreePage) IsLeafPage() bool {
	return n.GetPageType() == IndexPageTypeLeaf
}

// IsRootPage reports whether the node has no parent.
func (n *BPlusTreePage) IsRootPage() bool {
	return n.GetParentPageNo() == common.INVALID_PAGE_NO
}

// GetSize returns the number of stored entries.
func (n *BPlusTreePage) GetSize() int {
	return int(readInt32(n.data(), offSize))
}

// SetSize stores the entry count.
func (n *BPlusTreePage) SetSize(size int) {
	writeInt32(n.data(), offSize, int32(size))
}

// IncreaseSize adjusts the entry count by delta.
func (n *BPlusTreePage) IncreaseSize(delta int) {
	n.SetSize(n.GetSize() + delta)
}

// GetMaxSize returns the configured node capacity.
func (n *BPlusTreePage) GetMaxSize() int {
	return int(readInt32(n.data(), offMaxSize))
}

// SetMaxSize stores the node capacity.
func (n *BPlusTreePage) SetMaxSize(maxSize int) {
	writeInt32(n.data(), offMaxSize, int32(maxSize))
}

// GetMinSize returns the fill floor a non-root node must keep:
// ceil(max/2) for internal nodes, ceil((max-1)/2) for leaves.
func (n *BPlusTreePage) GetMinSize() int {
	if n.IsLeafPage() {
		return n.GetMaxSize() / 2
	}
	return (n.GetMaxSize() + 1) / 2
}

// GetPageNo returns the node's own page number.
func (n *BPlusTreePage) GetPageNo() common.PageNo {
	return common.PageNo(readInt64(n.data(), offPageNo))
}

// SetPageNo stores the node's own page number.
func (n *BPlusTreePage) SetPageNo(pageNo common.PageNo) {
	writeInt64(n.data(), offPageNo, int64(pageNo))
}

// GetParentPageNo returns the parent's page number, INVALID_PAGE_NO for the
// root.
func (n *BPlusTreePage) GetParentPageNo() common.PageNo {
	return common.PageNo(readInt64(n.data(), offParent))
}

// SetParentPageNo stores the parent back-reference.
func (n *BPlusTreePage) SetParentPageNo(pageNo common.PageNo) {
	writeInt64(n.data(), offParent, int64(pageNo))
}
