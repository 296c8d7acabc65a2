package types

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBad(t *testing.T) {
	pk := PrivateKeyFromSeed(make([]byte, 32)).PublicKey()
	other := genPrivateKey(fixedReader{}).PublicKey()

	// test some bad ones from raw json
	testCases := [][]byte{
		{},              // empty
		{1, 1, 1, 1, 1}, // junk
		[]byte(`{}`),    // empty
		[]byte(`{"chain_id":"mychain"}`), // no accounts
		[]byte(`{"chain_id":"mychain","accounts":[{"balance":"10"}]}`),                   // missing key
		[]byte(`{"chain_id":"mychain","accounts":[{"public_key":"00","balance":"10"}]}`), // short key
		[]byte(`{"chain_id":"mychain","accounts":[{"public_key":"` + pk.String() + `","balance":"ten"}]}`),
		// duplicate account
		[]byte(`{"chain_id":"mychain","accounts":[{"public_key":"` + pk.String() + `","balance":"1"},{"public_key":"` + pk.String() + `","balance":"1"}]}`),
		// above max supply
		[]byte(`{"chain_id":"mychain","accounts":[{"public_key":"` + pk.String() + `","balance":"340282366920938463463374607431768211455"},{"public_key":"` + other.String() + `","balance":"1"}]}`),
		// chain id too long
		[]byte(`{"chain_id":"` + strings.Repeat("a", MaxChainIDLen+1) + `","accounts":[{"public_key":"` + pk.String() + `","balance":"1"}]}`),
	}

	for _, testCase := range testCases {
		_, err := GenesisDocFromJSON(testCase)
		assert.Error(t, err, "expected error for bad genDoc json: %s", testCase)
	}
}

func TestGenesisGood(t *testing.T) {
	pk := PrivateKeyFromSeed(make([]byte, 32)).PublicKey()
	rep := genPrivateKey(fixedReader{}).PublicKey()

	genDocBytes := []byte(`{
		"chain_id": "test-chain-QDKdJr",
		"accounts": [
			{"public_key": "` + pk.String() + `", "balance": "1000"},
			{"public_key": "` + rep.String() + `", "balance": "5", "representative": "` + pk.String() + `"}
		]
	}`)
	genDoc, err := GenesisDocFromJSON(genDocBytes)
	require.NoError(t, err, "expected no error for good genDoc json")
	assert.False(t, genDoc.GenesisTime.IsZero(), "expected genesis time to be filled in")

	// representative defaults to the account itself
	assert.Equal(t, pk, genDoc.Accounts[0].Representative)
	assert.Equal(t, pk, genDoc.Accounts[1].Representative)

	accounts := genDoc.LedgerAccounts()
	require.Len(t, accounts, 2)
	assert.EqualValues(t, 1, accounts[0].Height)
	assert.Equal(t, NewAmount(1000), accounts[0].Balance)
	assert.Equal(t, GenesisHash(pk), accounts[0].LastTransactionHash)

	// roundtrip through a file
	file := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, genDoc.SaveAs(file))
	loaded, err := GenesisDocFromFile(file)
	require.NoError(t, err)
	assert.Equal(t, genDoc.Accounts, loaded.Accounts)
	assert.True(t, genDoc.GenesisTime.Equal(loaded.GenesisTime))

	_, err = GenesisDocFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadOrGenNodeKey(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "node_key.json")

	nodeKey, err := LoadOrGenNodeKey(filePath)
	require.NoError(t, err)

	nodeKey2, err := LoadOrGenNodeKey(filePath)
	require.NoError(t, err)
	assert.Equal(t, nodeKey.PublicKey(), nodeKey2.PublicKey())

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestNodeKeyRejectsMismatchedPublicKey(t *testing.T) {
	bz, err := json.Marshal(GenNodeKey())
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(bz, &raw))
	raw["public_key"] = GenNodeKey().PublicKey().String()
	bz, err = json.Marshal(raw)
	require.NoError(t, err)

	var nk NodeKey
	assert.Error(t, json.Unmarshal(bz, &nk))
}

type fixedReader struct{}

func (fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 7
	}
	return len(p), nil
}
