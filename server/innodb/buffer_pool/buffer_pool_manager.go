package buffer_pool

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/zhukovaskychina/xmysql-storage/logger"
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/server/innodb/storage/blocks"
)

// DiskManager is the block-device surface the pool drives. blocks.BlockFile
// is the on-disk implementation; tests substitute their own.
type DiskManager interface {
	ReadPage(pageNo common.PageNo, buf []byte) error
	WritePage(pageNo common.PageNo, content []byte) error
	AllocatedPages() (int64, error)
	PageSize() int
}

// BufferPoolManager caches disk pages in a fixed set of frames. A page table
// maps resident page numbers to frames, a free list tracks empty frames, and
// a CLOCK replacer picks victims among the resident, unpinned ones. The table
// mutex covers every structural operation; frame latches are the guards'
// business.
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize  int
	pageSize  int
	pages     []*Page
	pageTable map[common.PageNo]common.FrameNo
	freeList  []common.FrameNo
	replacer  *ClockReplacer
	disk      DiskManager

	nextPageNo common.PageNo

	stats Stats
}

var _ DiskManager = (*blocks.BlockFile)(nil)

// NewBufferPoolManager creates a pool of poolSize frames over the given disk
// manager. The page allocator resumes past the file's current extent, and
// page 0 stays reserved for the index header.
func NewBufferPoolManager(poolSize int, pageSize int, disk DiskManager) (*BufferPoolManager, error) {
	if poolSize <= 0 || pageSize <= common.FIL_PROLOGUE_SIZE {
		return nil, ErrInvalidConfig
	}
	if disk.PageSize() != pageSize {
		return nil, pkgerrors.Wrapf(ErrInvalidConfig, "pool page size %d does not match disk page size %d", pageSize, disk.PageSize())
	}

	allocated, err := disk.AllocatedPages()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to size the page allocator")
	}
	nextPageNo := common.PageNo(allocated)
	if nextPageNo < 1 {
		nextPageNo = 1
	}

	bpm := &BufferPoolManager{
		poolSize:   poolSize,
		pageSize:   pageSize,
		pages:      make([]*Page, poolSize),
		pageTable:  make(map[common.PageNo]common.FrameNo, poolSize),
		freeList:   make([]common.FrameNo, 0, poolSize),
		replacer:   NewClockReplacer(poolSize),
		disk:       disk,
		nextPageNo: nextPageNo,
	}

	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = newPage(pageSize)
		bpm.freeList = append(bpm.freeList, common.FrameNo(i))
	}

	return bpm, nil
}

// PoolSize returns the number of frames.
func (bpm *BufferPoolManager) PoolSize() int {
	return bpm.poolSize
}

// PageSize returns the page size in bytes.
func (bpm *BufferPoolManager) PageSize() int {
	return bpm.pageSize
}

// GetStats exposes cache counters.
func (bpm *BufferPoolManager) GetStats() *Stats {
	return &bpm.stats
}

// NewPage allocates a fresh page number, places it in a frame and returns
// the frame pinned once. Returns ErrBufferPoolFull when no frame can be
// freed.
func (bpm *BufferPoolManager) NewPage() (*Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameNo, fromFreeList, ok := bpm.findVictimLocked()
	if !ok {
		return nil, ErrBufferPoolFull
	}

	page := bpm.pages[frameNo]
	pageNo := bpm.nextPageNo

	if err := bpm.updatePageLocked(page, pageNo, frameNo); err != nil {
		bpm.restoreVictimLocked(frameNo, fromFreeList)
		return nil, err
	}
	bpm.nextPageNo++

	bpm.replacer.Pin(frameNo)
	page.pinCount = 1
	return page, nil
}

// FetchPage returns the requested page pinned, reading it from disk when it
// is not resident.
func (bpm *BufferPoolManager) FetchPage(pageNo common.PageNo) (*Page, error) {
	if pageNo == common.INVALID_PAGE_NO {
		return nil, ErrInvalidPageNo
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameNo, ok := bpm.pageTable[pageNo]; ok {
		page := bpm.pages[frameNo]
		bpm.replacer.Pin(frameNo)
		page.pinCount++
		bpm.stats.recordHit()
		return page, nil
	}
	bpm.stats.recordMiss()

	frameNo, fromFreeList, ok := bpm.findVictimLocked()
	if !ok {
		return nil, ErrBufferPoolFull
	}

	page := bpm.pages[frameNo]
	if err := bpm.updatePageLocked(page, pageNo, frameNo); err != nil {
		bpm.restoreVictimLocked(frameNo, fromFreeList)
		return nil, err
	}

	if err := bpm.disk.ReadPage(pageNo, page.data); err != nil {
		delete(bpm.pageTable, pageNo)
		page.resetMemory()
		page.pageNo = common.INVALID_PAGE_NO
		bpm.freeList = append(bpm.freeList, frameNo)
		if pkgerrors.Is(err, blocks.ErrChecksumMismatch) {
			return nil, pkgerrors.Wrapf(ErrPageCorrupted, "page %d: %v", pageNo, err)
		}
		return nil, pkgerrors.Wrapf(err, "failed to read page %d", pageNo)
	}

	bpm.replacer.Pin(frameNo)
	page.pinCount++
	return page, nil
}

// UnpinPage drops one pin. The dirty flag is OR-ed in, never cleared. False
// means the page is unmapped or was not pinned, which callers treat as a
// programming error.
func (bpm *BufferPoolManager) UnpinPage(pageNo common.PageNo, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameNo, ok := bpm.pageTable[pageNo]
	if !ok {
		return false
	}

	page := bpm.pages[frameNo]
	if page.pinCount == 0 {
		return false
	}

	page.pinCount--
	if page.pinCount == 0 {
		bpm.replacer.Unpin(frameNo)
	}

	if isDirty {
		page.dirty = true
	}
	return true
}

// FlushPage writes the page to disk and clears its dirty flag.
func (bpm *BufferPoolManager) FlushPage(pageNo common.PageNo) error {
	if pageNo == common.INVALID_PAGE_NO {
		return ErrInvalidPageNo
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameNo, ok := bpm.pageTable[pageNo]
	if !ok {
		return ErrPageNotFound
	}

	page := bpm.pages[frameNo]
	if err := bpm.disk.WritePage(page.pageNo, page.data); err != nil {
		return pkgerrors.Wrapf(err, "failed to flush page %d", pageNo)
	}
	page.dirty = false
	return nil
}

// FlushAllPages writes back every resident frame.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, page := range bpm.pages {
		if page.pageNo == common.INVALID_PAGE_NO {
			continue
		}
		if err := bpm.disk.WritePage(page.pageNo, page.data); err != nil {
			return pkgerrors.Wrapf(err, "failed to flush page %d", page.pageNo)
		}
		page.dirty = false
	}
	return nil
}

// DeletePage drops a page from the pool, returning its frame to the free
// list. A non-resident page deletes trivially; a pinned page refuses.
func (bpm *BufferPoolManager) DeletePage(pageNo common.PageNo) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameNo, ok := bpm.pageTable[pageNo]
	if !ok {
		return true
	}

	page := bpm.pages[frameNo]
	if page.pinCount > 0 {
		return false
	}

	if err := bpm.updatePageLocked(page, common.INVALID_PAGE_NO, frameNo); err != nil {
		logger.Errorf("failed to write back page %d during delete: %v", pageNo, err)
		return false
	}

	// The frame was an eviction candidate while it sat unpinned.
	bpm.replacer.Pin(frameNo)
	bpm.freeList = append(bpm.freeList, frameNo)
	return true
}

// updatePageLocked retargets a frame to a new page: write-back when dirty,
// page-table rewire, memory reset. Caller holds the table mutex.
func (bpm *BufferPoolManager) updatePageLocked(page *Page, newPageNo common.PageNo, frameNo common.FrameNo) error {
	if page.dirty {
		if err := bpm.disk.WritePage(page.pageNo, page.data); err != nil {
			return pkgerrors.Wrapf(err, "failed to write back page %d", page.pageNo)
		}
		page.dirty = false
	}

	if page.pageNo != common.INVALID_PAGE_NO {
		delete(bpm.pageTable, page.pageNo)
	}
	if newPageNo != common.INVALID_PAGE_NO {
		bpm.pageTable[newPageNo] = frameNo
	}

	page.resetMemory()
	page.pageNo = newPageNo
	return nil
}

// findVictimLocked prefers the free list, then asks the replacer.
func (bpm *BufferPoolManager) findVictimLocked() (common.FrameNo, bool, bool) {
	if len(bpm.freeList) > 0 {
		frameNo := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameNo, true, true
	}

	frameNo, ok := bpm.replacer.Victim()
	if !ok {
		return common.INVALID_FRAME_NO, false, false
	}
	bpm.stats.recordEviction()
	logger.Debugf("evicting frame %d holding page %d", frameNo, bpm.pages[frameNo].pageNo)
	return frameNo, false, true
}

// restoreVictimLocked puts a victim back where it came from after a failed
// retarget.
func (bpm *BufferPoolManager) restoreVictimLocked(frameNo common.FrameNo, fromFreeList bool) {
	if fromFreeList {
		bpm.freeList = append(bpm.freeList, frameNo)
		return
	}
	bpm.replacer.Unpin(frameNo)
}
