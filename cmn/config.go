package cmn

import (
	"os"
	"strconv"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/dash-project/dart-go/cmn/nlog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the process-wide runtime configuration, referenced through
// the GCO (Global Config Owner), grounded on aistore's cmn.GCO.Get()
// global-config-owner pattern (reb/resilver.go: cfg = cmn.GCO.Get()).
// The GCO holds the built-in defaults until Load (or GCO.Put) replaces
// them; dart.Init reads the GCO and does not call Load itself.
type Config struct {
	LogLevel string `json:"log_level"`

	// Transport selects one of "loopback", "shm", "net" (SPEC_FULL.md
	// §4.F').
	Transport TransportConfig `json:"transport"`

	Segment SegmentConfig `json:"segment"`

	Net NetConfig `json:"net"`

	// ThreadSupport mirrors dart_thread_support_level_t: "single" or
	// "multiple" (spec.md §5).
	ThreadSupport string `json:"thread_support"`
}

type TransportConfig struct {
	Backend string `json:"backend"` // loopback | shm | net
}

type SegmentConfig struct {
	// BuntThreshold: a live-segment count for choosing the buntdb-backed
	// registry (SPEC_FULL.md §4.B'). No code reads it: every team's
	// registry is created with segreg.NewSorted.
	BuntThreshold int `json:"bunt_threshold"`
}

type NetConfig struct {
	// CompressionThreshold: payload size (bytes) above which the "net"
	// transport backend lz4-compresses put/get bodies (SPEC_FULL.md
	// §4.F').
	CompressionThreshold int `json:"compression_threshold"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel:      "WARN",
		Transport:     TransportConfig{Backend: "loopback"},
		Segment:       SegmentConfig{BuntThreshold: 256},
		Net:           NetConfig{CompressionThreshold: 64 * 1024},
		ThreadSupport: "single",
	}
}

// globalConfigOwner is the GCO: a single atomically-swapped snapshot,
// grounded on cmn.GCO as referenced throughout aistore (cmn.GCO.Get()).
type globalConfigOwner struct {
	v atomic.Pointer[Config]
}

var GCO = &globalConfigOwner{}

func init() {
	GCO.v.Store(defaultConfig())
}

func (o *globalConfigOwner) Get() *Config { return o.v.Load() }

func (o *globalConfigOwner) Put(c *Config) { o.v.Store(c) }

// Load applies, in order: built-in defaults, an optional JSON config
// file, then the DART_LOG_LEVEL environment variable. Precedence rises
// left to right. Load reads no other variable and no --dart-* argv
// flag; the launcher's unit id, size and syncarea values are read from
// the DART_ID/DART_SIZE/DART_SYNCAREA_ID/DART_SYNCAREA_SIZE environment
// variables by ReadLauncherEnv, and no code parses the --dart-* flags.
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()
	if configPath != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return nil, NewErrOther("cmn.Load", err)
		}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, NewErrInval("cmn.Load: malformed config", err)
		}
	}
	if v, ok := os.LookupEnv("DART_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if lvl, ok := nlog.ParseLevel(cfg.LogLevel); ok {
		nlog.SetLevel(lvl)
	}
	GCO.Put(cfg)
	return cfg, nil
}

// LauncherEnv captures the four launcher-assigned variables described in
// spec.md §6 ("Launcher-specific variables for (my_id, size,
// syncarea_id, syncarea_size) when a shared-memory transport is used"),
// consumed during dart.Init.
type LauncherEnv struct {
	ID            int
	Size          int
	SyncareaID    string
	SyncareaSize  int64
	HasSyncarea   bool
}

func ReadLauncherEnv() (LauncherEnv, error) {
	var env LauncherEnv
	id, err := strconv.Atoi(os.Getenv("DART_ID"))
	if err != nil {
		return env, NewErrInval("cmn.ReadLauncherEnv: DART_ID", err)
	}
	size, err := strconv.Atoi(os.Getenv("DART_SIZE"))
	if err != nil {
		return env, NewErrInval("cmn.ReadLauncherEnv: DART_SIZE", err)
	}
	env.ID, env.Size = id, size
	if sid, ok := os.LookupEnv("DART_SYNCAREA_ID"); ok {
		env.SyncareaID = sid
		env.HasSyncarea = true
		if ssz, ok := os.LookupEnv("DART_SYNCAREA_SIZE"); ok {
			n, err := strconv.ParseInt(ssz, 10, 64)
			if err != nil {
				return env, NewErrInval("cmn.ReadLauncherEnv: DART_SYNCAREA_SIZE", err)
			}
			env.SyncareaSize = n
		}
	}
	return env, nil
}
