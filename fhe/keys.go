package fhe

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// SurveyKey is the public encryption material a survey creator registers.
// Respondents fetch it to encrypt their answers; the matching secret key
// never leaves the creator.
type SurveyKey struct {
	Params    Params `json:"params"`
	PublicKey string `json:"publicKey"` // base64(rlwe.PublicKey binary)
	Digest    string `json:"digest"`    // sha256 hex of the decoded public key
}

// GenerateKeys creates a fresh key pair for the given parameters.
func GenerateKeys(p Params) (*rlwe.SecretKey, *SurveyKey, error) {
	params, err := p.Build()
	if err != nil {
		return nil, nil, err
	}
	sk, pk := rlwe.NewKeyGenerator(params).GenKeyPairNew()
	sKey, err := NewSurveyKey(p, pk)
	if err != nil {
		return nil, nil, err
	}
	return sk, sKey, nil
}

// NewSurveyKey serialises pk together with its parameter literal.
func NewSurveyKey(p Params, pk *rlwe.PublicKey) (*SurveyKey, error) {
	raw, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return &SurveyKey{
		Params:    p,
		PublicKey: base64.StdEncoding.EncodeToString(raw),
		Digest:    sha256Hex(raw),
	}, nil
}

// ParseSurveyKey decodes keyJSON, checks that the public key matches the
// parameters and recomputes the digest. A digest supplied by the caller is
// ignored.
func ParseSurveyKey(keyJSON string) (*SurveyKey, error) {
	var k SurveyKey
	if err := json.Unmarshal([]byte(keyJSON), &k); err != nil {
		return nil, fmt.Errorf("bad key json: %w", err)
	}
	if k.Params.LogN == 0 {
		k.Params = DefaultParams()
	}
	if k.Params.LogP == nil {
		k.Params.LogP = []int{}
	}
	if strings.TrimSpace(k.PublicKey) == "" {
		return nil, fmt.Errorf("publicKey empty")
	}
	_, pk, err := k.Decode()
	if err != nil {
		return nil, err
	}
	raw, _ := pk.MarshalBinary()
	k.Digest = sha256Hex(raw)
	return &k, nil
}

// Decode returns the lattigo parameters and public key held by k.
func (k *SurveyKey) Decode() (bgv.Parameters, *rlwe.PublicKey, error) {
	params, err := k.Params.Build()
	if err != nil {
		return bgv.Parameters{}, nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(k.PublicKey))
	if err != nil {
		return bgv.Parameters{}, nil, fmt.Errorf("publicKey base64: %w", err)
	}
	pk := rlwe.NewPublicKey(params)
	if err := pk.UnmarshalBinary(raw); err != nil {
		return bgv.Parameters{}, nil, fmt.Errorf("publicKey decode: %w", err)
	}
	return params, pk, nil
}

// MarshalSecretKey encodes sk as base64 for storage by its owner.
func MarshalSecretKey(sk *rlwe.SecretKey) (string, error) {
	raw, err := sk.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal secret key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ParseSecretKey is the inverse of MarshalSecretKey.
func ParseSecretKey(p Params, b64 string) (*rlwe.SecretKey, error) {
	params, err := p.Build()
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("secret key base64: %w", err)
	}
	sk := rlwe.NewSecretKey(params)
	if err := sk.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("secret key decode: %w", err)
	}
	return sk, nil
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Handle returns the ledger handle of a serialised ciphertext.
func Handle(ct []byte) string { return sha256Hex(ct) }
