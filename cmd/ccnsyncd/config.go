package main

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ccnxgo/ccnsync/ccnsync"
)

// ccnsyncdConfig is the on-disk shape loaded from a TOML config file,
// mirroring the engine's Config plus the daemon's own listen/peer
// settings.
type ccnsyncdConfig struct {
	Localhost    string
	DataDir      string
	ListenAddr   string
	Peers        []string
	TopoPrefix   string
	NamingPrefix string

	Engine engineTomlConfig
}

// engineTomlConfig exposes the ccnsync.Config tunables spec.md §6
// names, in TOML-friendly duration strings. ActionFlags is not among
// them.
type engineTomlConfig struct {
	CachePurgeTrigger string
	CacheCleanBatch   int
	CacheCleanDelta   string
	AdviseNeedReset   int
	RootAdviseLifetime string
	RootAdviseFresh   string
	UpdateStallDelta  string
	UpdateNeedDelta   string
	ShortDelay        string
	CompareAssumeBad  string
	FetchLifetime     string
	NodeSplitTrigger  int
	ExclusionLimit    int
	HashSplitTrigger  int
	StableTimeTrigger string
	NamesYieldInc     int
	NamesYieldMicros  string
	MaxFetchBusy      int
	MaxComparesBusy   int
	HeartbeatInterval string
	FauxErrorTrigger  float64
	FauxErrorSeed     int64
}

func defaultCcnsyncdConfig() ccnsyncdConfig {
	return ccnsyncdConfig{
		DataDir:      "./ccnsync-data",
		ListenAddr:   ":7940",
		TopoPrefix:   "/local/sync",
		NamingPrefix: "/local/data",
	}
}

func loadConfig(file string, cfg *ccnsyncdConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return err
	}
	return nil
}

// durOr parses s as a time.Duration, falling back to def on an empty
// or unparsable string.
func durOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// toEngineConfig overlays any TOML-supplied overrides onto
// ccnsync.DefaultConfig, leaving every field the daemon doesn't
// recognize untouched.
func (c engineTomlConfig) toEngineConfig() ccnsync.Config {
	d := ccnsync.DefaultConfig()
	d.CachePurgeTrigger = durOr(c.CachePurgeTrigger, d.CachePurgeTrigger)
	if c.CacheCleanBatch > 0 {
		d.CacheCleanBatch = c.CacheCleanBatch
	}
	d.CacheCleanDelta = durOr(c.CacheCleanDelta, d.CacheCleanDelta)
	if c.AdviseNeedReset > 0 {
		d.AdviseNeedReset = c.AdviseNeedReset
	}
	d.RootAdviseLifetime = durOr(c.RootAdviseLifetime, d.RootAdviseLifetime)
	d.RootAdviseFresh = durOr(c.RootAdviseFresh, d.RootAdviseFresh)
	d.UpdateStallDelta = durOr(c.UpdateStallDelta, d.UpdateStallDelta)
	d.UpdateNeedDelta = durOr(c.UpdateNeedDelta, d.UpdateNeedDelta)
	d.ShortDelay = durOr(c.ShortDelay, d.ShortDelay)
	d.CompareAssumeBad = durOr(c.CompareAssumeBad, d.CompareAssumeBad)
	d.FetchLifetime = durOr(c.FetchLifetime, d.FetchLifetime)
	if c.NodeSplitTrigger > 0 {
		d.NodeSplitTrigger = c.NodeSplitTrigger
	}
	if c.ExclusionLimit > 0 {
		d.ExclusionLimit = c.ExclusionLimit
	}
	if c.HashSplitTrigger > 0 {
		d.HashSplitTrigger = c.HashSplitTrigger
	}
	d.StableTimeTrigger = durOr(c.StableTimeTrigger, d.StableTimeTrigger)
	if c.NamesYieldInc > 0 {
		d.NamesYieldInc = c.NamesYieldInc
	}
	d.NamesYieldMicros = durOr(c.NamesYieldMicros, d.NamesYieldMicros)
	if c.MaxFetchBusy > 0 {
		d.MaxFetchBusy = c.MaxFetchBusy
	}
	if c.MaxComparesBusy > 0 {
		d.MaxComparesBusy = c.MaxComparesBusy
	}
	d.HeartbeatInterval = durOr(c.HeartbeatInterval, d.HeartbeatInterval)
	if c.FauxErrorTrigger > 0 {
		d.FauxErrorTrigger = c.FauxErrorTrigger
	}
	if c.FauxErrorSeed != 0 {
		d.FauxErrorSeed = c.FauxErrorSeed
	}
	return d
}
