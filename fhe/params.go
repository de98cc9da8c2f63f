// Package fhe wraps the BGV scheme used to keep survey answers encrypted on
// the ledger. Answers are integers modulo the plaintext modulus held in slot
// 0 of a batched plaintext; accumulating answers is ciphertext addition.
//
// The chaincode only ever parses and adds ciphertexts. Key generation,
// encryption and decryption run off-chain (surveyxkit, tests).
package fhe

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// Params is the portable, JSON-encoded form of a BGV parameter set.
// It is what gets persisted next to a survey public key.
type Params struct {
	LogN             int    `json:"logN"`
	LogQ             []int  `json:"logQ"`
	LogP             []int  `json:"logP"`
	PlaintextModulus uint64 `json:"plaintextModulus"`
}

const (
	minLogN = 10
	maxLogN = 15
)

// DefaultParams returns the parameter set used when a survey key does not
// specify one. 65537 = 2^16+1 supports batching for every LogN up to 15.
func DefaultParams() Params {
	return Params{
		LogN:             12,
		LogQ:             []int{54},
		LogP:             []int{},
		PlaintextModulus: 65537,
	}
}

// Validate performs the cheap shape checks before handing the literal to lattigo.
func (p Params) Validate() error {
	if p.LogN < minLogN || p.LogN > maxLogN {
		return fmt.Errorf("logN %d outside [%d,%d]", p.LogN, minLogN, maxLogN)
	}
	if len(p.LogQ) == 0 {
		return fmt.Errorf("logQ empty")
	}
	for _, q := range p.LogQ {
		if q < 20 || q > 61 {
			return fmt.Errorf("logQ entry %d outside [20,61]", q)
		}
	}
	if p.PlaintextModulus < 2 {
		return fmt.Errorf("plaintext modulus must be at least 2")
	}
	return nil
}

// Build instantiates the lattigo parameters.
func (p Params) Build() (bgv.Parameters, error) {
	if err := p.Validate(); err != nil {
		return bgv.Parameters{}, err
	}
	params, err := bgv.NewParametersFromLiteral(bgv.ParametersLiteral{
		LogN:             p.LogN,
		LogQ:             p.LogQ,
		LogP:             p.LogP,
		PlaintextModulus: p.PlaintextModulus,
	})
	if err != nil {
		return bgv.Parameters{}, fmt.Errorf("bgv params: %w", err)
	}
	return params, nil
}

// Equal reports whether two literals describe the same parameter set.
func (p Params) Equal(o Params) bool {
	if p.LogN != o.LogN || p.PlaintextModulus != o.PlaintextModulus {
		return false
	}
	return intsEqual(p.LogQ, o.LogQ) && intsEqual(p.LogP, o.LogP)
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
