package blocks

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/zhukovaskychina/xmysql-storage/server/common"
	"github.com/zhukovaskychina/xmysql-storage/util"
)

// ErrChecksumMismatch reports a page whose stored checksum does not cover
// its payload.
var ErrChecksumMismatch = errors.New("page checksum mismatch")

// BlockFile is a flat page file read and written in fixed-size blocks.
// Every block carries an 8-byte xxhash of its payload in bytes [0,8);
// WritePage stamps it, ReadPage verifies it. A checksum of zero means the
// block was never written.
type BlockFile struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	pageSize int
}

// NewBlockFile creates a block file handle. The file itself is opened
// lazily on first use.
func NewBlockFile(dirPath string, fileName string, pageSize int) *BlockFile {
	return &BlockFile{
		filePath: path.Join(dirPath, fileName),
		pageSize: pageSize,
	}
}

// Open opens or creates the backing file.
func (bf *BlockFile) Open() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.openLocked()
}

func (bf *BlockFile) openLocked() error {
	if bf.file != nil {
		return nil
	}

	if err := os.MkdirAll(path.Dir(bf.filePath), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create data dir for %s", bf.filePath)
	}

	file, err := os.OpenFile(bf.filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open block file %s", bf.filePath)
	}
	bf.file = file
	return nil
}

// Close closes the backing file.
func (bf *BlockFile) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.file != nil {
		err := bf.file.Close()
		bf.file = nil
		return err
	}
	return nil
}

// PageSize returns the block size in bytes.
func (bf *BlockFile) PageSize() int {
	return bf.pageSize
}

// ReadPage fills buf with the contents of the given block. Reading past the
// current end of file yields a zeroed block, which is how a freshly
// allocated page looks before its first flush.
func (bf *BlockFile) ReadPage(pageNo common.PageNo, buf []byte) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if err := bf.openLocked(); err != nil {
		return err
	}

	offset := int64(pageNo) * int64(bf.pageSize)
	n, err := bf.file.ReadAt(buf[:bf.pageSize], offset)
	if err != nil && err != io.EOF {
		return pkgerrors.Wrapf(err, "failed to read page %d from %s", pageNo, bf.filePath)
	}
	for i := n; i < bf.pageSize; i++ {
		buf[i] = 0
	}

	stored := binary.LittleEndian.Uint64(buf[:common.FIL_PROLOGUE_SIZE])
	if stored != 0 && stored != util.HashCode(buf[common.FIL_PROLOGUE_SIZE:bf.pageSize]) {
		return pkgerrors.Wrapf(ErrChecksumMismatch, "page %d in %s", pageNo, bf.filePath)
	}

	return nil
}

// WritePage stamps the checksum into content and persists the block.
func (bf *BlockFile) WritePage(pageNo common.PageNo, content []byte) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if err := bf.openLocked(); err != nil {
		return err
	}

	sum := util.HashCode(content[common.FIL_PROLOGUE_SIZE:bf.pageSize])
	binary.LittleEndian.PutUint64(content[:common.FIL_PROLOGUE_SIZE], sum)

	offset := int64(pageNo) * int64(bf.pageSize)
	if _, err := bf.file.WriteAt(content[:bf.pageSize], offset); err != nil {
		return pkgerrors.Wrapf(err, "failed to write page %d to %s", pageNo, bf.filePath)
	}
	return nil
}

// AllocatedPages reports how many blocks the file currently spans; a partial
// trailing block counts as one.
func (bf *BlockFile) AllocatedPages() (int64, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if err := bf.openLocked(); err != nil {
		return 0, err
	}

	stat, err := bf.file.Stat()
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to stat %s", bf.filePath)
	}
	return (stat.Size() + int64(bf.pageSize) - 1) / int64(bf.pageSize), nil
}

// Sync flushes the file to stable storage.
func (bf *BlockFile) Sync() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.file == nil {
		return nil
	}
	return bf.file.Sync()
}
