package buffer_pool

import (
	"github.com/zhukovaskychina/xmysql-storage/server/common"
)

// BasicPageGuard owns one pin on a frame and gives it back on Drop. Guards
// release exactly once; dropping an empty guard is a no-op, which is what
// makes deferred Drop safe on every exit path.
type BasicPageGuard struct {
	bpm     *BufferPoolManager
	page    *Page
	isDirty bool
}

// PageNo returns the guarded page number.
func (g *BasicPageGuard) PageNo() common.PageNo {
	return g.page.GetPageNo()
}

// Page exposes the guarded frame so typed node views can wrap it.
func (g *BasicPageGuard) Page() *Page {
	return g.page
}

// Data exposes the frame buffer.
func (g *BasicPageGuard) Data() []byte {
	return g.page.Data()
}

// SetDirty records that the caller mutated the page; the unpin on Drop will
// carry the flag into the pool.
func (g *BasicPageGuard) SetDirty() {
	g.isDirty = true
}

// Drop unpins the page. Idempotent.
func (g *BasicPageGuard) Drop() {
	if g.bpm == nil || g.page == nil {
		return
	}
	g.bpm.UnpinPage(g.page.GetPageNo(), g.isDirty)
	g.bpm = nil
	g.page = nil
	g.isDirty = false
}

// ReadPageGuard holds a pin plus the frame's shared latch.
type ReadPageGuard struct {
	guard BasicPageGuard
}

// PageNo returns the guarded page number.
func (g *ReadPageGuard) PageNo() common.PageNo {
	return g.guard.PageNo()
}

// Page exposes the guarded frame.
func (g *ReadPageGuard) Page() *Page {
	return g.guard.Page()
}

// Data exposes the frame buffer.
func (g *ReadPageGuard) Data() []byte {
	return g.guard.Data()
}

// Drop releases the shared latch, then the pin. Idempotent.
func (g *ReadPageGuard) Drop() {
	if g.guard.bpm == nil || g.guard.page == nil {
		return
	}
	g.guard.page.RUnlatch()
	g.guard.Drop()
}

// WritePageGuard holds a pin plus the frame's exclusive latch.
type WritePageGuard struct {
	guard BasicPageGuard
}

// PageNo returns the guarded page number.
func (g *WritePageGuard) PageNo() common.PageNo {
	return g.guard.PageNo()
}

// Page exposes the guarded frame.
func (g *WritePageGuard) Page() *Page {
	return g.guard.Page()
}

// Data exposes the frame buffer.
func (g *WritePageGuard) Data() []byte {
	return g.guard.Data()
}

// SetDirty records a mutation for the unpin on Drop.
func (g *WritePageGuard) SetDirty() {
	g.guard.SetDirty()
}

// Drop releases the exclusive latch, then the pin. Idempotent.
func (g *WritePageGuard) Drop() {
	if g.guard.bpm == nil || g.guard.page == nil {
		return
	}
	g.guard.page.WUnlatch()
	g.guard.Drop()
}

// FetchPageBasic fetches a page under a pin-only guard. Used where the
// caller already holds the frame's latch through another guard, such as
// re-entering an ancestor kept in a traversal's page set.
func (bpm *BufferPoolManager) FetchPageBasic(pageNo common.PageNo) (*BasicPageGuard, error) {
	page, err := bpm.FetchPage(pageNo)
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bpm: bpm, page: page}, nil
}

// FetchPageRead fetches a page and acquires its shared latch. The latch is
// taken outside the pool mutex, so a blocked latch never stalls the pool.
func (bpm *BufferPoolManager) FetchPageRead(pageNo common.PageNo) (*ReadPageGuard, error) {
	page, err := bpm.FetchPage(pageNo)
	if err != nil {
		return nil, err
	}
	page.RLatch()
	return &ReadPageGuard{guard: BasicPageGuard{bpm: bpm, page: page}}, nil
}

// FetchPageWrite fetches a page and acquires its exclusive latch.
func (bpm *BufferPoolManager) FetchPageWrite(pageNo common.PageNo) (*WritePageGuard, error) {
	page, err := bpm.FetchPage(pageNo)
	if err != nil {
		return nil, err
	}
	page.WLatch()
	return &WritePageGuard{guard: BasicPageGuard{bpm: bpm, page: page}}, nil
}

// NewPageGuarded allocates a fresh page under a pin-only guard. The page is
// invisible to other threads until the caller links it into a structure, so
// no latch is needed while it is being filled.
func (bpm *BufferPoolManager) NewPageGuarded() (*BasicPageGuard, error) {
	page, err := bpm.NewPage()
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bpm: bpm, page: page}, nil
}
