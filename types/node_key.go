package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
)

// NodeKey is the persistent key of a node. A voting node signs its votes
// with it, so its public key is the node's representative account.
type NodeKey struct {
	PrivateKey PrivateKey
}

type nodeKeyJSON struct {
	PublicKey  PublicKey `json:"public_key"`
	PrivateKey string    `json:"private_key"`
}

func (nk NodeKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeKeyJSON{
		PublicKey:  nk.PublicKey(),
		PrivateKey: hex.EncodeToString(nk.PrivateKey),
	})
}

func (nk *NodeKey) UnmarshalJSON(data []byte) error {
	var raw nodeKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	bz, err := hex.DecodeString(raw.PrivateKey)
	if err != nil {
		return err
	}
	if len(bz) != PrivateKeySize {
		return errors.New("invalid private key length")
	}
	nk.PrivateKey = PrivateKey(bz)
	if nk.PublicKey() != raw.PublicKey {
		return errors.New("public key does not match private key")
	}
	return nil
}

// PublicKey returns the node's public key.
func (nk NodeKey) PublicKey() PublicKey {
	return nk.PrivateKey.PublicKey()
}

// SaveAs persists the NodeKey to filePath.
func (nk NodeKey) SaveAs(filePath string) error {
	jsonBytes, err := json.Marshal(nk)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, jsonBytes, 0600)
}

// LoadOrGenNodeKey attempts to load the NodeKey from the given filePath. If
// the file does not exist, it generates and saves a new NodeKey.
func LoadOrGenNodeKey(filePath string) (NodeKey, error) {
	if _, err := os.Stat(filePath); err == nil {
		return LoadNodeKey(filePath)
	}

	nodeKey := GenNodeKey()

	if err := nodeKey.SaveAs(filePath); err != nil {
		return NodeKey{}, err
	}

	return nodeKey, nil
}

// GenNodeKey generates a new node key.
func GenNodeKey() NodeKey {
	return NodeKey{PrivateKey: GenPrivateKey()}
}

// LoadNodeKey loads NodeKey located in filePath.
func LoadNodeKey(filePath string) (NodeKey, error) {
	jsonBytes, err := os.ReadFile(filePath)
	if err != nil {
		return NodeKey{}, err
	}
	nodeKey := NodeKey{}
	if err := json.Unmarshal(jsonBytes, &nodeKey); err != nil {
		return NodeKey{}, err
	}
	return nodeKey, nil
}
