package config

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/gwlog"
)

func init() {
	SetConfigFile("../../entitysync.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	if config == nil {
		t.FailNow()
	}
	gwlog.Debugf("entitysync config: \n%s", DumpPretty(config))

	assert.Equal(t, 15100, config.Gate.Port)
	assert.T(t, config.Gate.EnableWebSocket, "websocket should be enabled")
	assert.Equal(t, 25100, config.Sync.HTTPPort)
	assert.Equal(t, time.Minute, config.Sync.StatusInterval)

	obj := GetGrid(common.Object)
	assert.Equal(t, 350, obj.MaxEntitiesPerCell)
	assert.Equal(t, float64(50000), obj.Width)
	assert.Equal(t, float64(10000), obj.OffsetX)
	assert.Equal(t, float64(100), obj.CellLength)
	assert.Equal(t, 125, GetGrid(common.TextLabel).MaxEntitiesPerCell)
	assert.Equal(t, time.Millisecond*50, GetGrid(common.Character).TickInterval)
	assert.Equal(t, time.Millisecond*250, GetGrid(common.Marker).TickInterval)
	assert.Equal(t, uint32(100), GetGrid(common.Marker).DefaultRange)
}

func TestReload(t *testing.T) {
	cfg1 := Get()
	cfg2 := Reload()
	assert.T(t, cfg1 != cfg2, "reload should read a new config")
	assert.Equal(t, cfg1.Gate, cfg2.Gate)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	for _, et := range common.AllEntityTypes() {
		assert.T(t, cfg.Grids[et].Validate() == nil, "default grid config should be valid")
	}
	assert.Equal(t, 350, cfg.Grids[common.Object].MaxEntitiesPerCell)
	assert.Equal(t, 125, cfg.Grids[common.Character].MaxEntitiesPerCell)
	assert.T(t, cfg.Grids[common.Character].TickInterval < cfg.Grids[common.Marker].TickInterval, "characters should tick faster than markers")
}

func TestGridInheritance(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
[grid_common]
cell_size = 50
max_entities_per_cell = 10

[grid_marker]
max_entities_per_cell = 3
cell_height = 20
height = 200
`))
	assert.Equal(t, nil, err)
	assert.Equal(t, 10, cfg.Grids[common.Object].MaxEntitiesPerCell)
	assert.Equal(t, float64(50), cfg.Grids[common.Object].CellWidth)
	assert.Equal(t, 3, cfg.Grids[common.Marker].MaxEntitiesPerCell)
	assert.Equal(t, float64(20), cfg.Grids[common.Marker].CellHeight)
	assert.Equal(t, float64(50), cfg.Grids[common.Marker].CellLength)
}

func TestInvalidConfig(t *testing.T) {
	_, err := LoadBytes([]byte("[grid_common]\nbogus = 1\n"))
	assert.T(t, err != nil, "unknown key should fail")

	_, err = LoadBytes([]byte("[grid_vehicle]\nwidth = 1\n"))
	assert.T(t, err != nil, "unknown entity type should fail")

	_, err = LoadBytes([]byte("[grid_object]\ncell_width = 0\n"))
	assert.T(t, err != nil, "zero cell size should fail")

	_, err = Load("does-not-exist.ini")
	assert.T(t, err != nil, "missing file should fail")
}

func TestGetConfigDir(t *testing.T) {
	assert.Equal(t, "../../", GetConfigDir())
	assert.Equal(t, "../../entitysync.ini.sample", GetConfigFilePath())
}
