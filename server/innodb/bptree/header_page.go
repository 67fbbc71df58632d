package bptree

import (
	"encoding/binary"

	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/buffer_pool"
)

// headerPageMagic marks an initialized index header. A header page without
// it is a fresh file.
const headerPageMagic uint32 = 0x58425452

const (
	offHeaderMagic = common.FIL_PROLOGUE_SIZE + 0
	offRootPageNo  = common.FIL_PROLOGUE_SIZE + 8
)

// HeaderPage is the view over the reserved page that tracks the index root
// across restarts.
type HeaderPage struct {
	page *buffer_pool.Page
}

// AsHeaderPage wraps a frame in the header view.
func AsHeaderPage(page *buffer_pool.Page) *HeaderPage {
	return &HeaderPage{page: page}
}

// GetMagic returns the header magic word.
func (h *HeaderPage) GetMagic() uint32 {
	return binary.LittleEndian.Uint32(h.page.Data()[offHeaderMagic:])
}

// SetMagic stores the header magic word.
func (h *HeaderPage) SetMagic(magic uint32) {
	binary.LittleEndian.PutUint32(h.page.Data()[offHeaderMagic:], magic)
}

// GetRootPageNo returns the tree root, INVALID_PAGE_NO when the tree is
// empty.
func (h *HeaderPage) GetRootPageNo() common.PageNo {
	return common.PageNo(readInt64(h.page.Data(), offRootPageNo))
}

// SetRootPageNo stores the tree root.
func (h *HeaderPage) SetRootPageNo(pageNo common.PageNo) {
	writeInt64(h.page.Data(), offRootPageNo, int64(pageNo))
}
