package common

const (
	// UNIV_PAGE_SIZE is the default on-disk page size in bytes.
	UNIV_PAGE_SIZE = 16384

	// FIL_PROLOGUE_SIZE is the per-page prologue: an 8-byte xxhash checksum
	// stamped by the disk layer. Page payload starts after it.
	FIL_PROLOGUE_SIZE = 8

	// DEFAULT_BUFFER_POOL_PAGES is the default number of frames.
	DEFAULT_BUFFER_POOL_PAGES = 1024

	// HEADER_PAGE_NO is the reserved page holding index metadata.
	HEADER_PAGE_NO PageNo = 0
)
