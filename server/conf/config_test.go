package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-storage/server/common"
)

func TestNewCfgDefaults(t *testing.T) {
	cfg := NewCfg()

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, common.UNIV_PAGE_SIZE, cfg.PageSize)
	assert.Equal(t, common.DEFAULT_BUFFER_POOL_PAGES, cfg.BufferPoolPages)
	assert.Equal(t, 32, cfg.LeafMaxSize)
	assert.Equal(t, 32, cfg.InternalMaxSize)
	assert.Equal(t, common.HEADER_PAGE_NO, cfg.HeaderPageNo)
	assert.Equal(t, "info", cfg.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestCfgLoad(t *testing.T) {
	testDir := t.TempDir()
	configPath := filepath.Join(testDir, "my.cnf")
	content := `
[storage]
data_dir          = /tmp/xstorage
page_size         = 4096
buffer_pool_pages = 128
leaf_max_size     = 16
internal_max_size = 8

[logs]
log_level = debug
log_infos = /tmp/xstorage/storage.log
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg := NewCfg()
	require.NoError(t, cfg.Load(configPath))

	assert.Equal(t, "/tmp/xstorage", cfg.DataDir)
	assert.Equal(t, 4096, cfg.PageSize)
	assert.Equal(t, 128, cfg.BufferPoolPages)
	assert.Equal(t, 16, cfg.LeafMaxSize)
	assert.Equal(t, 8, cfg.InternalMaxSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/xstorage/storage.log", cfg.LogInfos)
}

func TestCfgLoadMissingFile(t *testing.T) {
	cfg := NewCfg()
	assert.Error(t, cfg.Load("/nonexistent/my.cnf"))
}

func TestCfgValidate(t *testing.T) {
	cfg := NewCfg()
	cfg.LeafMaxSize = 2
	assert.Error(t, cfg.Validate())

	cfg = NewCfg()
	cfg.BufferPoolPages = 1
	assert.Error(t, cfg.Validate())

	cfg = NewCfg()
	cfg.PageSize = 256
	assert.Error(t, cfg.Validate())
}
