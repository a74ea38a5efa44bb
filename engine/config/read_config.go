package config

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/gwlog"
)

const (
	_DEFAULT_CONFIG_FILE = "entitysync.ini"
	_DEFAULT_HTTP_IP     = "127.0.0.1"
	_DEFAULT_LOG_LEVEL   = "info"
	_DEFAULT_GATE_IP     = "0.0.0.0"
	_DEFAULT_GATE_PORT   = 15100

	_SECTION_SYNC        = "sync"
	_SECTION_GATE        = "gate"
	_SECTION_GRID_COMMON = "grid_common"
	_SECTION_GRID_PREFIX = "grid_"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	syncConfig     *EntitySyncConfig
	configLock     sync.Mutex
)

// SyncConfig defines process wide fields of the sync service
type SyncConfig struct {
	LogFile        string
	LogStderr      bool
	LogLevel       string
	HTTPIp         string
	HTTPPort       int
	GoMaxProcs     int
	StatusInterval time.Duration
}

// GateConfig defines fields of the observer gate
type GateConfig struct {
	Ip                     string
	Port                   int
	EnableKCP              bool
	EnableWebSocket        bool
	CompressConnection     bool
	UpdatesPerSecond       float64
	UpdateBurst            int
	HeartbeatCheckInterval time.Duration
}

// GridConfig defines the geometry, capacity and dispatch rate of one entity type's grid
//
// World coordinates in [-Offset, Extent-Offset) map into the grid; positions outside are clamped
// to the border cells. Height or CellHeight of 0 means a single vertical band.
type GridConfig struct {
	Width              float64
	Length             float64
	Height             float64
	OffsetX            float64
	OffsetY            float64
	OffsetZ            float64
	CellWidth          float64
	CellLength         float64
	CellHeight         float64
	MaxEntitiesPerCell int
	DefaultRange       uint32
	TickInterval       time.Duration
}

// EntitySyncConfig defines the total config file structure
type EntitySyncConfig struct {
	Sync       SyncConfig
	Gate       GateConfig
	GridCommon GridConfig
	Grids      [common.EntityTypeCount]*GridConfig
}

// SetConfigFile sets the config file path (entitysync.ini by default)
func SetConfigFile(f string) {
	configLock.Lock()
	configFilePath = f
	syncConfig = nil
	configLock.Unlock()
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config, reading the config file at the first call
func Get() *EntitySyncConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if syncConfig == nil {
		gwlog.Infof("Using config file: %s", configFilePath)
		cfg, err := Load(configFilePath)
		if err != nil {
			gwlog.Panicf("read config failed: %+v", err)
		}
		syncConfig = cfg
	}
	return syncConfig
}

// Reload forces the whole config to be read again
func Reload() *EntitySyncConfig {
	configLock.Lock()
	syncConfig = nil
	configLock.Unlock()

	return Get()
}

// GetSync returns the process wide config
func GetSync() *SyncConfig {
	return &Get().Sync
}

// GetGate returns the observer gate config
func GetGate() *GateConfig {
	return &Get().Gate
}

// GetGrid returns the grid config of the entity type
func GetGrid(t common.EntityType) *GridConfig {
	return Get().Grids[t]
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// Default returns the built-in config used when no config file is given
func Default() *EntitySyncConfig {
	cfg := &EntitySyncConfig{}
	setSyncDefaults(&cfg.Sync)
	setGateDefaults(&cfg.Gate)
	setGridDefaults(&cfg.GridCommon)
	for _, t := range common.AllEntityTypes() {
		cfg.Grids[t] = defaultGridConfig(t, &cfg.GridCommon)
	}
	return cfg
}

// Load reads the config file
func Load(file string) (*EntitySyncConfig, error) {
	iniFile, err := ini.Load(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", file)
	}
	return parse(iniFile)
}

// LoadBytes reads config from in-memory ini data
func LoadBytes(data []byte) (*EntitySyncConfig, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "load config data")
	}
	return parse(iniFile)
}

func parse(iniFile *ini.File) (*EntitySyncConfig, error) {
	cfg := &EntitySyncConfig{}
	setSyncDefaults(&cfg.Sync)
	setGateDefaults(&cfg.Gate)
	setGridDefaults(&cfg.GridCommon)

	if err := readSyncConfig(iniFile.Section(_SECTION_SYNC), &cfg.Sync); err != nil {
		return nil, err
	}
	if err := readGateConfig(iniFile.Section(_SECTION_GATE), &cfg.Gate); err != nil {
		return nil, err
	}

	commonSec := iniFile.Section(_SECTION_GRID_COMMON)
	if err := readGridConfig(commonSec, &cfg.GridCommon); err != nil {
		return nil, err
	}

	for _, t := range common.AllEntityTypes() {
		gc := defaultGridConfig(t, &cfg.GridCommon)
		// grid_common overrides the per type defaults, grid_<type> overrides grid_common
		if err := readGridConfig(commonSec, gc); err != nil {
			return nil, err
		}
		cfg.Grids[t] = gc
	}

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		if secName == strings.ToLower(ini.DefaultSection) || secName == _SECTION_SYNC || secName == _SECTION_GATE || secName == _SECTION_GRID_COMMON {
			continue
		}

		if strings.HasPrefix(secName, _SECTION_GRID_PREFIX) {
			t, ok := common.ParseEntityType(secName[len(_SECTION_GRID_PREFIX):])
			if !ok {
				return nil, errors.Errorf("invalid grid section: %s", sec.Name())
			}
			if err := readGridConfig(sec, cfg.Grids[t]); err != nil {
				return nil, err
			}
		} else {
			gwlog.Errorf("unknown section: %s", sec.Name())
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setSyncDefaults(sc *SyncConfig) {
	sc.LogFile = "entitysync.log"
	sc.LogStderr = true
	sc.LogLevel = _DEFAULT_LOG_LEVEL
	sc.HTTPIp = _DEFAULT_HTTP_IP
	sc.HTTPPort = 0 // pprof not enabled by default
	sc.GoMaxProcs = 0
	sc.StatusInterval = consts.DEFAULT_STATUS_INTERVAL
}

func readSyncConfig(sec *ini.Section, sc *SyncConfig) error {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "http_ip" {
			sc.HTTPIp = key.MustString(sc.HTTPIp)
		} else if name == "http_port" {
			sc.HTTPPort = key.MustInt(sc.HTTPPort)
		} else if name == "gomaxprocs" {
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		} else if name == "status_interval" {
			sc.StatusInterval = time.Second * time.Duration(key.MustInt(int(sc.StatusInterval/time.Second)))
		} else {
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

func setGateDefaults(gc *GateConfig) {
	gc.Ip = _DEFAULT_GATE_IP
	gc.Port = _DEFAULT_GATE_PORT
	gc.UpdatesPerSecond = consts.DEFAULT_OBSERVER_UPDATE_HZ
	gc.UpdateBurst = consts.DEFAULT_OBSERVER_UPDATE_BURST
}

func readGateConfig(sec *ini.Section, gc *GateConfig) error {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			gc.Ip = key.MustString(gc.Ip)
		} else if name == "port" {
			gc.Port = key.MustInt(gc.Port)
		} else if name == "kcp" {
			gc.EnableKCP = key.MustBool(gc.EnableKCP)
		} else if name == "websocket" {
			gc.EnableWebSocket = key.MustBool(gc.EnableWebSocket)
		} else if name == "compress_connection" {
			gc.CompressConnection = key.MustBool(gc.CompressConnection)
		} else if name == "updates_per_second" {
			gc.UpdatesPerSecond = key.MustFloat64(gc.UpdatesPerSecond)
		} else if name == "update_burst" {
			gc.UpdateBurst = key.MustInt(gc.UpdateBurst)
		} else if name == "heartbeat_check_interval" {
			gc.HeartbeatCheckInterval = time.Second * time.Duration(key.MustInt(int(gc.HeartbeatCheckInterval/time.Second)))
		} else {
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

func setGridDefaults(gc *GridConfig) {
	gc.Width = consts.DEFAULT_GRID_WIDTH
	gc.Length = consts.DEFAULT_GRID_LENGTH
	gc.OffsetX = consts.DEFAULT_GRID_OFFSET_X
	gc.OffsetY = consts.DEFAULT_GRID_OFFSET_Y
	gc.CellWidth = consts.DEFAULT_GRID_CELL_SIZE
	gc.CellLength = consts.DEFAULT_GRID_CELL_SIZE
	gc.MaxEntitiesPerCell = consts.DEFAULT_ENTITIES_PER_CELL
	gc.DefaultRange = consts.DEFAULT_ENTITY_RANGE
	gc.TickInterval = consts.DEFAULT_TICK_INTERVAL
}

// defaultGridConfig returns the built-in grid config of the entity type: objects are packed
// denser, characters tick faster and markers slower than the common defaults
func defaultGridConfig(t common.EntityType, gridCommon *GridConfig) *GridConfig {
	gc := *gridCommon
	switch t {
	case common.Object:
		gc.MaxEntitiesPerCell = consts.DEFAULT_OBJECTS_PER_CELL
	case common.Character:
		gc.TickInterval = consts.DEFAULT_CHARACTER_TICK
	case common.Marker:
		gc.TickInterval = consts.DEFAULT_MARKER_TICK
	}
	return &gc
}

func readGridConfig(sec *ini.Section, gc *GridConfig) error {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "width" {
			gc.Width = key.MustFloat64(gc.Width)
		} else if name == "length" {
			gc.Length = key.MustFloat64(gc.Length)
		} else if name == "height" {
			gc.Height = key.MustFloat64(gc.Height)
		} else if name == "offset_x" {
			gc.OffsetX = key.MustFloat64(gc.OffsetX)
		} else if name == "offset_y" {
			gc.OffsetY = key.MustFloat64(gc.OffsetY)
		} else if name == "offset_z" {
			gc.OffsetZ = key.MustFloat64(gc.OffsetZ)
		} else if name == "cell_size" {
			gc.CellWidth = key.MustFloat64(gc.CellWidth)
			gc.CellLength = gc.CellWidth
		} else if name == "cell_width" {
			gc.CellWidth = key.MustFloat64(gc.CellWidth)
		} else if name == "cell_length" {
			gc.CellLength = key.MustFloat64(gc.CellLength)
		} else if name == "cell_height" {
			gc.CellHeight = key.MustFloat64(gc.CellHeight)
		} else if name == "max_entities_per_cell" {
			gc.MaxEntitiesPerCell = key.MustInt(gc.MaxEntitiesPerCell)
		} else if name == "default_range" {
			gc.DefaultRange = uint32(key.MustUint(uint(gc.DefaultRange)))
		} else if name == "tick_interval_ms" {
			gc.TickInterval = time.Millisecond * time.Duration(key.MustInt(int(gc.TickInterval/time.Millisecond)))
		} else {
			return errors.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
	return nil
}

// Validate checks the grid geometry
func (gc *GridConfig) Validate() error {
	if gc.Width <= 0 || gc.Length <= 0 || gc.Height < 0 {
		return errors.Errorf("invalid grid extent: %vx%vx%v", gc.Width, gc.Length, gc.Height)
	}
	if gc.CellWidth <= 0 || gc.CellLength <= 0 || gc.CellHeight < 0 {
		return errors.Errorf("invalid grid cell size: %vx%vx%v", gc.CellWidth, gc.CellLength, gc.CellHeight)
	}
	if gc.MaxEntitiesPerCell <= 0 {
		return errors.Errorf("max_entities_per_cell must be positive: %d", gc.MaxEntitiesPerCell)
	}
	if gc.TickInterval <= 0 {
		return errors.Errorf("tick interval must be positive: %s", gc.TickInterval)
	}
	return nil
}

func (gc *GridConfig) String() string {
	return fmt.Sprintf("GridConfig<%vx%vx%v cell=%vx%vx%v max=%d range=%d tick=%s>",
		gc.Width, gc.Length, gc.Height, gc.CellWidth, gc.CellLength, gc.CellHeight, gc.MaxEntitiesPerCell, gc.DefaultRange, gc.TickInterval)
}

func validateConfig(cfg *EntitySyncConfig) error {
	for _, t := range common.AllEntityTypes() {
		if err := cfg.Grids[t].Validate(); err != nil {
			return errors.Wrapf(err, "grid %s", t)
		}
	}
	if cfg.Gate.UpdatesPerSecond <= 0 || cfg.Gate.UpdateBurst <= 0 {
		return errors.Errorf("gate update rate must be positive: %v/%d", cfg.Gate.UpdatesPerSecond, cfg.Gate.UpdateBurst)
	}
	return nil
}
