package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	// MaxChainIDLen is a maximum length of the chain ID.
	MaxChainIDLen = 50
)

//------------------------------------------------------------
// core types for a genesis definition

// GenesisAccount is an account that exists before the first block.
type GenesisAccount struct {
	PublicKey      PublicKey `json:"public_key"`
	Balance        Amount    `json:"balance"`
	Representative PublicKey `json:"representative"`
}

// GenesisDoc defines the initial conditions of a ledger, in particular the
// balances that seed the weight table.
type GenesisDoc struct {
	GenesisTime time.Time        `json:"genesis_time"`
	ChainID     string           `json:"chain_id"`
	Accounts    []GenesisAccount `json:"accounts"`
}

// GenesisHash is the previous hash of the first block of a genesis account.
func GenesisHash(pk PublicKey) Hash {
	return Sum256(pk[:], []byte("genesis"))
}

// SaveAs is a utility method for saving GenesisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := json.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, genDocBytes, 0644)
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(genDoc.Accounts) == 0 {
		return errors.New("genesis doc must include at least one account")
	}

	var (
		supply Amount
		seen   = make(map[PublicKey]struct{}, len(genDoc.Accounts))
		err    error
	)
	for i, acc := range genDoc.Accounts {
		if acc.PublicKey.IsZero() {
			return fmt.Errorf("genesis account %d has no public key", i)
		}
		if _, ok := seen[acc.PublicKey]; ok {
			return fmt.Errorf("duplicate genesis account %v", acc.PublicKey)
		}
		seen[acc.PublicKey] = struct{}{}

		if supply, err = supply.Add(acc.Balance); err != nil {
			return fmt.Errorf("genesis balances exceed the maximum supply: %w", err)
		}
		if acc.Representative.IsZero() {
			genDoc.Accounts[i].Representative = acc.PublicKey
		}
	}

	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = time.Now().UTC()
	}

	return nil
}

// LedgerAccounts returns the genesis accounts as opened account chains.
func (genDoc *GenesisDoc) LedgerAccounts() []Account {
	accounts := make([]Account, len(genDoc.Accounts))
	for i, acc := range genDoc.Accounts {
		accounts[i] = Account{
			PublicKey:                acc.PublicKey,
			Height:                   1,
			Balance:                  acc.Balance,
			Representative:           acc.Representative,
			LastTransactionHash:      GenesisHash(acc.PublicKey),
			LastTransactionTimestamp: genDoc.GenesisTime,
		}
	}
	return accounts
}

//------------------------------------------------------------
// Make genesis state from file

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	err := json.Unmarshal(jsonBlob, &genDoc)
	if err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, err
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := os.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}
