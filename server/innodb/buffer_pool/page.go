package buffer_pool

import (
	"sync"

	"github.com/zhukovaskychina/xmysql-storage/server/common"
)

// Page is one frame of the buffer pool: a fixed-size byte buffer plus the
// bookkeeping the pool needs. pageNo, pinCount and dirty are guarded by the
// pool's table mutex; the RW latch protects the buffer contents and is taken
// by page guards, never by the pool itself.
type Page struct {
	rwlatch sync.RWMutex

	pageNo   common.PageNo
	pinCount int
	dirty    bool
	data     []byte
}

func newPage(pageSize int) *Page {
	return &Page{
		pageNo: common.INVALID_PAGE_NO,
		data:   make([]byte, pageSize),
	}
}

// GetPageNo returns the page currently held by this frame, or
// INVALID_PAGE_NO for a free frame.
func (p *Page) GetPageNo() common.PageNo {
	return p.pageNo
}

// GetPinCount returns the number of outstanding pins.
func (p *Page) GetPinCount() int {
	return p.pinCount
}

// IsDirty reports whether the in-memory contents diverge from disk.
func (p *Page) IsDirty() bool {
	return p.dirty
}

// Data exposes the frame's byte buffer.
func (p *Page) Data() []byte {
	return p.data
}

func (p *Page) resetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.dirty = false
}

// RLatch acquires the frame latch in shared mode.
func (p *Page) RLatch() {
	p.rwlatch.RLock()
}

// RUnlatch releases the shared frame latch.
func (p *Page) RUnlatch() {
	p.rwlatch.RUnlock()
}

// WLatch acquires the frame latch in exclusive mode.
func (p *Page) WLatch() {
	p.rwlatch.Lock()
}

// WUnlatch releases the exclusive frame latch.
func (p *Page) WUnlatch() {
	p.rwlatch.Unlock()
}
