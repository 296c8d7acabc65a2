package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/tendermint/lattice/types"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// VotingWeightFixed gates voting on the configured minimal voting weight.
	VotingWeightFixed = "fixed"
	// VotingWeightConfirmation gates voting on the current minimal
	// confirmation weight.
	VotingWeightConfirmation = "confirmation"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
var (
	DefaultLatticeDir = ".lattice"
	defaultConfigDir  = "config"
	defaultDataDir    = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"
	defaultNodeKeyName     = "node_key.json"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
	defaultNodeKeyPath     = filepath.Join(defaultConfigDir, defaultNodeKeyName)
)

// Config defines the top level configuration for a lattice node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Election        *ElectionConfig        `mapstructure:"election"`
	Votes           *VoteConfig            `mapstructure:"votes"`
	Weights         *WeightConfig          `mapstructure:"weights"`
	Guardian        *GuardianConfig        `mapstructure:"guardian"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a lattice node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Election:        DefaultElectionConfig(),
		Votes:           DefaultVoteConfig(),
		Weights:         DefaultWeightConfig(),
		Guardian:        DefaultGuardianConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Election:        TestElectionConfig(),
		Votes:           TestVoteConfig(),
		Weights:         TestWeightConfig(),
		Guardian:        TestGuardianConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Election.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [election] section")
	}
	if err := cfg.Votes.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [votes] section")
	}
	if err := cfg.Weights.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [weights] section")
	}
	if err := cfg.Guardian.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [guardian] section")
	}
	return errors.Wrap(
		cfg.Instrumentation.ValidateBasic(),
		"error in [instrumentation] section",
	)
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a lattice node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db_backend"`

	// Database directory
	DBPath string `mapstructure:"db_dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format"`

	// Path to the JSON file listing the genesis accounts
	Genesis string `mapstructure:"genesis_file"`

	// Path to the JSON file containing the key this node votes with
	NodeKey string `mapstructure:"node_key_file"`

	// If true, this node casts votes for the weight delegated to its key
	Voter bool `mapstructure:"voter"`
}

// DefaultBaseConfig returns a default base configuration for a lattice node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Genesis:   defaultGenesisJSONPath,
		NodeKey:   defaultNodeKeyPath,
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
		Voter:     false,
	}
}

// TestBaseConfig returns a base configuration for testing a lattice node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	cfg.Voter = true
	return cfg
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// NodeKeyFile returns the full path to the node_key.json file
func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log_format (must be 'plain' or 'json')")
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db_backend %q", cfg.DBBackend)
	}
	return nil
}

// DefaultLogLevel defines a default log level as INFO.
const DefaultLogLevel = "info"

//-----------------------------------------------------------------------------
// ElectionConfig

// ElectionConfig defines the configuration for election tracking and vote
// casting.
type ElectionConfig struct {
	// How long an election may run before it is abandoned.
	Timeout time.Duration `mapstructure:"timeout"`

	// Age after which an unconfirmed election rebroadcasts its transaction.
	StalingAfter time.Duration `mapstructure:"staling_after"`

	// Minimal time between two rebroadcasts of the same transaction.
	RebroadcastInterval time.Duration `mapstructure:"rebroadcast_interval"`

	// How often elections are checked for staling and expiry.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// Which weight gates vote casting: fixed | confirmation
	// * fixed uses minimal_voting_weight
	// * confirmation uses the current minimal confirmation weight
	VotingWeightMode string `mapstructure:"voting_weight_mode"`

	// Weight this node needs before it casts votes in fixed mode.
	MinimalVotingWeight string `mapstructure:"minimal_voting_weight"`
}

// DefaultElectionConfig returns a default configuration for elections.
func DefaultElectionConfig() *ElectionConfig {
	return &ElectionConfig{
		Timeout:             5 * time.Minute,
		StalingAfter:        time.Minute,
		RebroadcastInterval: 30 * time.Second,
		SweepInterval:       time.Second,
		VotingWeightMode:    VotingWeightFixed,
		MinimalVotingWeight: "1",
	}
}

// TestElectionConfig returns a configuration for testing elections.
func TestElectionConfig() *ElectionConfig {
	cfg := DefaultElectionConfig()
	cfg.Timeout = 2 * time.Second
	cfg.StalingAfter = 500 * time.Millisecond
	cfg.RebroadcastInterval = 200 * time.Millisecond
	cfg.SweepInterval = 50 * time.Millisecond
	return cfg
}

// MinimalVotingAmount returns MinimalVotingWeight as an amount. It must
// only be called after ValidateBasic.
func (cfg *ElectionConfig) MinimalVotingAmount() types.Amount {
	return mustAmount(cfg.MinimalVotingWeight)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ElectionConfig) ValidateBasic() error {
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if cfg.StalingAfter <= 0 || cfg.StalingAfter >= cfg.Timeout {
		return errors.New("staling_after must be positive and below timeout")
	}
	if cfg.RebroadcastInterval <= 0 {
		return errors.New("rebroadcast_interval must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("sweep_interval must be positive")
	}
	switch cfg.VotingWeightMode {
	case VotingWeightFixed, VotingWeightConfirmation:
	default:
		return fmt.Errorf("unknown voting_weight_mode %q (must be 'fixed' or 'confirmation')", cfg.VotingWeightMode)
	}
	if _, err := types.ParseAmount(cfg.MinimalVotingWeight); err != nil {
		return errors.Wrap(err, "minimal_voting_weight")
	}
	return nil
}

//-----------------------------------------------------------------------------
// VoteConfig

// VoteConfig defines the configuration for vote admission.
type VoteConfig struct {
	// Maximum number of votes waiting to be handed to elections.
	QueueMaxSize int `mapstructure:"queue_max_size"`

	// Maximum number of votes held for transactions without an election.
	BufferSize int `mapstructure:"buffer_size"`

	// Number of vote signatures remembered for de-duplication, and for how
	// long.
	DedupCacheSize int           `mapstructure:"dedup_cache_size"`
	DedupTTL       time.Duration `mapstructure:"dedup_ttl"`

	// Number of rejected transaction hashes remembered, and for how long.
	RejectedCacheSize int           `mapstructure:"rejected_cache_size"`
	RejectedTTL       time.Duration `mapstructure:"rejected_ttl"`

	// How long the drain loop waits before re-checking an empty queue.
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// DefaultVoteConfig returns a default configuration for vote admission.
func DefaultVoteConfig() *VoteConfig {
	return &VoteConfig{
		QueueMaxSize:      10000,
		BufferSize:        100000,
		DedupCacheSize:    100000,
		DedupTTL:          5 * time.Minute,
		RejectedCacheSize: 10000,
		RejectedTTL:       10 * time.Minute,
		DrainInterval:     50 * time.Millisecond,
	}
}

// TestVoteConfig returns a configuration for testing vote admission.
func TestVoteConfig() *VoteConfig {
	cfg := DefaultVoteConfig()
	cfg.QueueMaxSize = 100
	cfg.BufferSize = 100
	cfg.DedupCacheSize = 1000
	cfg.RejectedCacheSize = 100
	cfg.DrainInterval = 10 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *VoteConfig) ValidateBasic() error {
	if cfg.QueueMaxSize <= 0 {
		return errors.New("queue_max_size must be positive")
	}
	if cfg.BufferSize <= 0 {
		return errors.New("buffer_size must be positive")
	}
	if cfg.DedupCacheSize <= 0 {
		return errors.New("dedup_cache_size must be positive")
	}
	if cfg.DedupTTL < 0 {
		return errors.New("dedup_ttl can't be negative")
	}
	if cfg.RejectedCacheSize <= 0 {
		return errors.New("rejected_cache_size must be positive")
	}
	if cfg.RejectedTTL < 0 {
		return errors.New("rejected_ttl can't be negative")
	}
	if cfg.DrainInterval <= 0 {
		return errors.New("drain_interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// WeightConfig

// WeightConfig defines how representative weights turn into thresholds.
type WeightConfig struct {
	// Share of the online weight, in percent, needed to confirm.
	ConfirmationThresholdPercent uint64 `mapstructure:"confirmation_threshold_percent"`

	// Lower bound of the confirmation weight. Must be positive, or an
	// election with nobody online would confirm on any final vote.
	MinimalConfirmationWeight string `mapstructure:"minimal_confirmation_weight"`

	// Rebroadcast weight used while no representative is online.
	MinimalRebroadcastWeight string `mapstructure:"minimal_rebroadcast_weight"`

	// A representative counts as online if it voted within this window.
	OnlineSampleWindow time.Duration `mapstructure:"online_sample_window"`

	// How often thresholds are recomputed.
	RecalculateInterval time.Duration `mapstructure:"recalculate_interval"`
}

// DefaultWeightConfig returns a default weight configuration.
func DefaultWeightConfig() *WeightConfig {
	return &WeightConfig{
		ConfirmationThresholdPercent: 67,
		MinimalConfirmationWeight:    "1000000",
		MinimalRebroadcastWeight:     "1000",
		OnlineSampleWindow:           time.Hour,
		RecalculateInterval:          time.Hour,
	}
}

// TestWeightConfig returns a weight configuration for testing.
func TestWeightConfig() *WeightConfig {
	cfg := DefaultWeightConfig()
	cfg.MinimalConfirmationWeight = "100"
	cfg.MinimalRebroadcastWeight = "10"
	cfg.RecalculateInterval = 100 * time.Millisecond
	return cfg
}

// ConfirmationFloor returns MinimalConfirmationWeight as an amount. It must
// only be called after ValidateBasic.
func (cfg *WeightConfig) ConfirmationFloor() types.Amount {
	return mustAmount(cfg.MinimalConfirmationWeight)
}

// RebroadcastFloor returns MinimalRebroadcastWeight as an amount. It must
// only be called after ValidateBasic.
func (cfg *WeightConfig) RebroadcastFloor() types.Amount {
	return mustAmount(cfg.MinimalRebroadcastWeight)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *WeightConfig) ValidateBasic() error {
	if cfg.ConfirmationThresholdPercent == 0 || cfg.ConfirmationThresholdPercent > 100 {
		return errors.New("confirmation_threshold_percent must be in (0, 100]")
	}
	floor, err := types.ParseAmount(cfg.MinimalConfirmationWeight)
	if err != nil {
		return errors.Wrap(err, "minimal_confirmation_weight")
	}
	if floor.IsZero() {
		return errors.New("minimal_confirmation_weight must be positive")
	}
	if _, err := types.ParseAmount(cfg.MinimalRebroadcastWeight); err != nil {
		return errors.Wrap(err, "minimal_rebroadcast_weight")
	}
	if cfg.OnlineSampleWindow <= 0 {
		return errors.New("online_sample_window must be positive")
	}
	if cfg.RecalculateInterval <= 0 {
		return errors.New("recalculate_interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// GuardianConfig

// GuardianConfig defines the configuration of the peer flood guard.
type GuardianConfig struct {
	// How often message counters are compared.
	Interval time.Duration `mapstructure:"interval"`

	// A peer is banned once it sends more than the trusted median times
	// this multiplier within one interval.
	ToleranceMultiplier float64 `mapstructure:"tolerance_multiplier"`

	// Intervals where the trusted median is below this value are skipped.
	MinimalMedian float64 `mapstructure:"minimal_median"`
}

// DefaultGuardianConfig returns a default guardian configuration.
func DefaultGuardianConfig() *GuardianConfig {
	return &GuardianConfig{
		Interval:            5 * time.Second,
		ToleranceMultiplier: 10,
		MinimalMedian:       1,
	}
}

// TestGuardianConfig returns a guardian configuration for testing.
func TestGuardianConfig() *GuardianConfig {
	cfg := DefaultGuardianConfig()
	cfg.Interval = 50 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *GuardianConfig) ValidateBasic() error {
	if cfg.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if cfg.ToleranceMultiplier < 1 {
		return errors.New("tolerance_multiplier can't be less than 1")
	}
	if cfg.MinimalMedian < 0 {
		return errors.New("minimal_median can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "lattice",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus_listen_addr is required when prometheus is enabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func mustAmount(s string) types.Amount {
	a, err := types.ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}
