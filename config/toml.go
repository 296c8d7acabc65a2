package config

import (
	"bytes"
	"os"
	"path/filepath"
	"text/template"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist.
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{
		rootDir,
		filepath.Join(rootDir, defaultConfigDir),
		filepath.Join(rootDir, defaultDataDir),
	} {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return err
		}
	}
	return nil
}

// ConfigFile returns the full path to the config.toml file under rootDir.
func ConfigFile(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteConfigFile renders config using the template and writes it to
// the default location under rootDir.
// This function is called by cmd/lattice/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(ConfigFile(rootDir))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return os.WriteFile(path, buffer.Bytes(), 0644)
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/lattice/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.lattice" by default, but could be changed via $LATTICE_HOME env
# variable or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Database backend: goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ .BaseConfig.DBPath }}"

# Output level for logging: debug | info | error
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file listing the genesis accounts
genesis_file = "{{ js .BaseConfig.Genesis }}"

# Path to the JSON file containing the key this node votes with
node_key_file = "{{ js .BaseConfig.NodeKey }}"

# If true, this node casts votes for the weight delegated to its key
voter = {{ .BaseConfig.Voter }}

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###           Election Configuration Options        ###
#######################################################
[election]

# How long an election may run before it is abandoned
timeout = "{{ .Election.Timeout }}"

# Age after which an unconfirmed election rebroadcasts its transaction
staling_after = "{{ .Election.StalingAfter }}"

# Minimal time between two rebroadcasts of the same transaction
rebroadcast_interval = "{{ .Election.RebroadcastInterval }}"

# How often elections are checked for staling and expiry
sweep_interval = "{{ .Election.SweepInterval }}"

# Which weight gates vote casting: fixed | confirmation
# * fixed uses minimal_voting_weight
# * confirmation uses the current minimal confirmation weight
voting_weight_mode = "{{ .Election.VotingWeightMode }}"

# Weight this node needs before it casts votes in fixed mode
minimal_voting_weight = "{{ .Election.MinimalVotingWeight }}"

#######################################################
###             Vote Configuration Options          ###
#######################################################
[votes]

# Maximum number of votes waiting to be handed to elections
queue_max_size = {{ .Votes.QueueMaxSize }}

# Maximum number of votes held for transactions without an election
buffer_size = {{ .Votes.BufferSize }}

# Number of vote signatures remembered for de-duplication, and for how long
dedup_cache_size = {{ .Votes.DedupCacheSize }}
dedup_ttl = "{{ .Votes.DedupTTL }}"

# Number of rejected transaction hashes remembered, and for how long
rejected_cache_size = {{ .Votes.RejectedCacheSize }}
rejected_ttl = "{{ .Votes.RejectedTTL }}"

# How long the drain loop waits before re-checking an empty queue
drain_interval = "{{ .Votes.DrainInterval }}"

#######################################################
###            Weight Configuration Options         ###
#######################################################
[weights]

# Share of the online weight, in percent, needed to confirm
confirmation_threshold_percent = {{ .Weights.ConfirmationThresholdPercent }}

# Lower bound of the confirmation weight
minimal_confirmation_weight = "{{ .Weights.MinimalConfirmationWeight }}"

# Rebroadcast weight used while no representative is online
minimal_rebroadcast_weight = "{{ .Weights.MinimalRebroadcastWeight }}"

# A representative counts as online if it voted within this window
online_sample_window = "{{ .Weights.OnlineSampleWindow }}"

# How often thresholds are recomputed
recalculate_interval = "{{ .Weights.RecalculateInterval }}"

#######################################################
###           Guardian Configuration Options        ###
#######################################################
[guardian]

# How often message counters are compared
interval = "{{ .Guardian.Interval }}"

# A peer is banned once it sends more than the trusted median times this
# multiplier within one interval
tolerance_multiplier = {{ printf "%g" .Guardian.ToleranceMultiplier }}

# Intervals where the trusted median is below this value are skipped
minimal_median = {{ printf "%g" .Guardian.MinimalMedian }}

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`
