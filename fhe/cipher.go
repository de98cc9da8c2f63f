package fhe

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// MaxCiphertextB64 bounds the encoded size accepted from a transaction argument.
const MaxCiphertextB64 = 1 << 20

// Encrypt encodes value into slot 0 and encrypts it under pk.
func Encrypt(params bgv.Parameters, pk *rlwe.PublicKey, value uint64) ([]byte, error) {
	if t := params.PlaintextModulus(); value >= t {
		return nil, fmt.Errorf("value %d not below plaintext modulus %d", value, t)
	}
	slots := make([]uint64, params.MaxSlots())
	slots[0] = value

	pt := bgv.NewPlaintext(params, params.MaxLevel())
	if err := bgv.NewEncoder(params).Encode(slots, pt); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	ct, err := rlwe.NewEncryptor(params, pk).EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ct.MarshalBinary()
}

// EncryptB64 is Encrypt with base64 output, the form taken by SubmitResponse.
func EncryptB64(params bgv.Parameters, pk *rlwe.PublicKey, value uint64) (string, error) {
	raw, err := Encrypt(params, pk, value)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeB64 decodes a base64 ciphertext argument with a size guard.
func DecodeB64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("ciphertext empty")
	}
	if len(s) > MaxCiphertextB64 {
		return nil, fmt.Errorf("ciphertext too large (%d > %d bytes)", len(s), MaxCiphertextB64)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ciphertext base64: %w", err)
	}
	return raw, nil
}

// freshCiphertext allocates a degree-1 top-level ciphertext carrying the
// metadata Encrypt produces.
func freshCiphertext(params bgv.Parameters) *rlwe.Ciphertext {
	ct := rlwe.NewCiphertext(params, 1, params.MaxLevel())
	ct.Scale = params.DefaultScale()
	ct.LogDimensions = params.LogMaxDimensions()
	ct.IsBatched = true
	ct.IsNTT = params.NTTFlag()
	ct.IsMontgomery = false
	return ct
}

// checkLayout compares the length prefixes of raw with the serialisation of
// a fresh ciphertext. lattigo trusts those prefixes when reading, so a short
// or resized buffer must never reach UnmarshalBinary.
func checkLayout(ref *rlwe.Ciphertext, want, raw []byte) error {
	if len(raw) != len(want) {
		return fmt.Errorf("ciphertext size %d, want %d", len(raw), len(want))
	}
	if raw[0] != want[0] {
		return fmt.Errorf("ciphertext metadata missing")
	}
	off := 1 + ref.MetaData.BinarySize()
	same := func(n int) bool {
		ok := bytes.Equal(raw[off:off+n], want[off:off+n])
		off += n
		return ok
	}
	if !same(8) {
		return fmt.Errorf("ciphertext degree header mismatch")
	}
	for i := range ref.Value {
		if !same(8) {
			return fmt.Errorf("ciphertext level header mismatch")
		}
		for _, row := range ref.Value[i].Coeffs {
			if !same(8) {
				return fmt.Errorf("ciphertext ring degree header mismatch")
			}
			off += len(row) << 3
		}
	}
	if off != len(want) {
		return fmt.Errorf("ciphertext layout drift")
	}
	return nil
}

// ParseCiphertext unmarshals raw and rejects anything that is not a fresh
// degree-1 ciphertext at the top level of params: wrong buffer layout,
// metadata that differs from what Encrypt writes, or coefficients outside
// their modulus.
func ParseCiphertext(params bgv.Parameters, raw []byte) (*rlwe.Ciphertext, error) {
	ref := freshCiphertext(params)
	want, err := ref.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ciphertext template: %w", err)
	}
	if err := checkLayout(ref, want, raw); err != nil {
		return nil, err
	}

	ct := rlwe.NewCiphertext(params, 1, params.MaxLevel())
	if err := ct.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("ciphertext decode: %w", err)
	}
	if ct.Degree() != 1 {
		return nil, fmt.Errorf("ciphertext degree %d, want 1", ct.Degree())
	}
	if ct.Level() != params.MaxLevel() {
		return nil, fmt.Errorf("ciphertext level %d, want %d", ct.Level(), params.MaxLevel())
	}
	if ct.MetaData == nil {
		return nil, fmt.Errorf("ciphertext metadata missing")
	}
	switch {
	case ct.Scale.Cmp(ref.Scale) != 0:
		return nil, fmt.Errorf("ciphertext scale does not match the default scale")
	case ct.IsNTT != ref.IsNTT:
		return nil, fmt.Errorf("ciphertext NTT flag %t, want %t", ct.IsNTT, ref.IsNTT)
	case ct.IsMontgomery:
		return nil, fmt.Errorf("ciphertext in Montgomery form")
	case !ct.IsBatched:
		return nil, fmt.Errorf("ciphertext not batched")
	case ct.IsBitReversed:
		return nil, fmt.Errorf("ciphertext bit-reversed")
	case ct.LogDimensions != ref.LogDimensions:
		return nil, fmt.Errorf("ciphertext dimensions %v, want %v", ct.LogDimensions, ref.LogDimensions)
	}
	moduli := params.RingQ().ModuliChain()
	for i := range ct.Value {
		if len(ct.Value[i].Coeffs) != len(moduli) {
			return nil, fmt.Errorf("ciphertext level does not match the modulus chain")
		}
		for j, row := range ct.Value[i].Coeffs {
			if len(row) != params.N() {
				return nil, fmt.Errorf("ciphertext ring degree does not match N=%d", params.N())
			}
			for _, c := range row {
				if c >= moduli[j] {
					return nil, fmt.Errorf("ciphertext coefficient out of range")
				}
			}
		}
	}
	return ct, nil
}

// Add returns the serialised sum acc + ct. A nil acc is the encryption of
// zero, so the first answer becomes the accumulator as-is.
func Add(params bgv.Parameters, acc, ct []byte) ([]byte, error) {
	rhs, err := ParseCiphertext(params, ct)
	if err != nil {
		return nil, err
	}
	if len(acc) == 0 {
		return rhs.MarshalBinary()
	}
	lhs, err := ParseCiphertext(params, acc)
	if err != nil {
		return nil, fmt.Errorf("accumulator: %w", err)
	}
	sum, err := bgv.NewEvaluator(params, nil).AddNew(lhs, rhs)
	if err != nil {
		return nil, fmt.Errorf("homomorphic add: %w", err)
	}
	return sum.MarshalBinary()
}

// Decrypt recovers the slot 0 value of ct.
func Decrypt(params bgv.Parameters, sk *rlwe.SecretKey, raw []byte) (uint64, error) {
	ct, err := ParseCiphertext(params, raw)
	if err != nil {
		return 0, err
	}
	pt := rlwe.NewDecryptor(params, sk).DecryptNew(ct)
	slots := make([]uint64, params.MaxSlots())
	if err := bgv.NewEncoder(params).Decode(pt, slots); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	return slots[0], nil
}
