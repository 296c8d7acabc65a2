package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ensureFiles(t *testing.T, rootDir string, files ...string) {
	for _, f := range files {
		p := rootify(f, rootDir)
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestEnsureRoot(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, EnsureRoot(tmpDir))
	require.NoError(t, WriteConfigFile(tmpDir, DefaultConfig()))

	data, err := os.ReadFile(filepath.Join(tmpDir, defaultConfigFilePath))
	require.NoError(t, err)
	checkConfig(t, string(data))

	ensureFiles(t, tmpDir, "data", "config")
}

func TestWrittenConfigIsValidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, EnsureRoot(tmpDir))
	require.NoError(t, WriteConfigFile(tmpDir, TestConfig()))

	var raw map[string]interface{}
	_, err := toml.DecodeFile(ConfigFile(tmpDir), &raw)
	require.NoError(t, err)

	assert.Equal(t, "memdb", raw["db_backend"])
	assert.Equal(t, true, raw["voter"])

	votes, ok := raw["votes"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 100, votes["queue_max_size"])
	assert.Equal(t, "10ms", votes["drain_interval"])

	guardian, ok := raw["guardian"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 10, guardian["tolerance_multiplier"])
}

func TestConfigRoundTripsThroughViper(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, EnsureRoot(tmpDir))

	want := TestConfig()
	want.Election.VotingWeightMode = VotingWeightConfirmation
	want.Guardian.ToleranceMultiplier = 2.5
	require.NoError(t, WriteConfigFile(tmpDir, want))

	v := viper.New()
	v.SetConfigFile(ConfigFile(tmpDir))
	require.NoError(t, v.ReadInConfig())

	got := DefaultConfig()
	require.NoError(t, v.Unmarshal(got))
	require.NoError(t, got.ValidateBasic())

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func checkConfig(t *testing.T, configFile string) {
	t.Helper()
	// list of words we expect in the config
	var elems = []string{
		"db_backend",
		"db_dir",
		"log_level",
		"log_format",
		"genesis_file",
		"node_key_file",
		"voter",
		"[election]",
		"voting_weight_mode",
		"[votes]",
		"queue_max_size",
		"[weights]",
		"confirmation_threshold_percent",
		"[guardian]",
		"tolerance_multiplier",
		"[instrumentation]",
	}
	for _, e := range elems {
		if !strings.Contains(configFile, e) {
			t.Errorf("config file was expected to contain %s but did not", e)
		}
	}
}
