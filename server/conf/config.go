package conf

import (
	"fmt"

	"github.com/zhukovaskychina/xmysql-storage/server/common"

	"gopkg.in/ini.v1"
)

/*
Storage configuration, loaded from a my.cnf style ini file:

[storage]
data_dir            = data
page_size           = 16384
buffer_pool_pages   = 1024
leaf_max_size       = 32
internal_max_size   = 32

[logs]
log_error = /var/log/xmysql/error.log
log_infos = /var/log/xmysql/storage.log
log_level = info
*/
type Cfg struct {
	Raw *ini.File

	// storage
	DataDir         string `default:"data" json:"data_dir,omitempty"`
	DataFile        string `default:"ibdata1" json:"data_file,omitempty"`
	PageSize        int    `default:"16384" json:"page_size,omitempty"`
	BufferPoolPages int    `default:"1024" json:"buffer_pool_pages,omitempty"`
	LeafMaxSize     int    `default:"32" json:"leaf_max_size,omitempty"`
	InternalMaxSize int    `default:"32" json:"internal_max_size,omitempty"`
	HeaderPageNo    common.PageNo

	// logs
	LogError string `default:"" json:"log_error,omitempty"`
	LogInfos string `default:"" json:"log_infos,omitempty"`
	LogLevel string `default:"info" json:"log_level,omitempty"`
}

// NewCfg returns a Cfg populated with defaults.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:             ini.Empty(),
		DataDir:         "data",
		DataFile:        "ibdata1",
		PageSize:        common.UNIV_PAGE_SIZE,
		BufferPoolPages: common.DEFAULT_BUFFER_POOL_PAGES,
		LeafMaxSize:     32,
		InternalMaxSize: 32,
		HeaderPageNo:    common.HEADER_PAGE_NO,
		LogLevel:        "info",
	}
}

// Load overlays values from an ini file onto the defaults.
func (cfg *Cfg) Load(configPath string) error {
	raw, err := ini.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %v", configPath, err)
	}
	cfg.Raw = raw

	storage := raw.Section("storage")
	if storage.HasKey("data_dir") {
		cfg.DataDir = storage.Key("data_dir").String()
	}
	if storage.HasKey("data_file") {
		cfg.DataFile = storage.Key("data_file").String()
	}
	if storage.HasKey("page_size") {
		cfg.PageSize = storage.Key("page_size").MustInt(common.UNIV_PAGE_SIZE)
	}
	if storage.HasKey("buffer_pool_pages") {
		cfg.BufferPoolPages = storage.Key("buffer_pool_pages").MustInt(common.DEFAULT_BUFFER_POOL_PAGES)
	}
	if storage.HasKey("leaf_max_size") {
		cfg.LeafMaxSize = storage.Key("leaf_max_size").MustInt(32)
	}
	if storage.HasKey("internal_max_size") {
		cfg.InternalMaxSize = storage.Key("internal_max_size").MustInt(32)
	}

	logs := raw.Section("logs")
	if logs.HasKey("log_error") {
		cfg.LogError = logs.Key("log_error").String()
	}
	if logs.HasKey("log_infos") {
		cfg.LogInfos = logs.Key("log_infos").String()
	}
	if logs.HasKey("log_level") {
		cfg.LogLevel = logs.Key("log_level").String()
	}

	return cfg.Validate()
}

// Validate rejects a page size below 512 bytes, fewer than two frames and
// node capacities below 3. It does not check that the node entry arrays
// fit the page; NewBPlusTree does.
func (cfg *Cfg) Validate() error {
	if cfg.PageSize < 512 {
		return fmt.Errorf("page_size %d is below the 512 byte minimum", cfg.PageSize)
	}
	if cfg.BufferPoolPages < 2 {
		return fmt.Errorf("buffer_pool_pages %d cannot hold the header page and a node", cfg.BufferPoolPages)
	}
	if cfg.LeafMaxSize < 3 {
		return fmt.Errorf("leaf_max_size %d is too small to split", cfg.LeafMaxSize)
	}
	if cfg.InternalMaxSize < 3 {
		return fmt.Errorf("internal_max_size %d is too small to split", cfg.InternalMaxSize)
	}
	return nil
}
