package fhe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// inputDomain separates input attestations from any other use of the verifier key.
const inputDomain = "surveyx/input/v1"

// InputDigest binds a ciphertext to the survey, question and submitting
// client so an attestation cannot be replayed by another caller or onto a
// different question.
func InputDigest(surveyID, questionID uint64, clientID string, ct []byte) []byte {
	msg := fmt.Sprintf("%s|%d|%d|%s|%s", inputDomain, surveyID, questionID, clientID, Handle(ct))
	h := sha256.Sum256([]byte(msg))
	return h[:]
}

// GenerateVerifierKey creates a new input verifier key pair.
func GenerateVerifierKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// VerifierPublicHex returns the compressed public key in hex, the form
// stored in the INPUT_VERIFIER_KEY parameter.
func VerifierPublicHex(priv *secp256k1.PrivateKey) string {
	return hex.EncodeToString(priv.PubKey().SerializeCompressed())
}

// ParseVerifierPrivate decodes a hex private key scalar.
func ParseVerifierPrivate(s string) (*secp256k1.PrivateKey, error) {
	b, err := hex.DecodeString(strip0x(s))
	if err != nil {
		return nil, fmt.Errorf("verifier private key hex: %w", err)
	}
	if len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("verifier private key must be %d bytes", secp256k1.PrivKeyBytesLen)
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

// ParseVerifierKey decodes a hex secp256k1 public key (compressed or not).
func ParseVerifierKey(s string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(strip0x(s))
	if err != nil {
		return nil, fmt.Errorf("verifier key hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("verifier key: %w", err)
	}
	return pub, nil
}

// SignInput produces the hex DER attestation for digest.
func SignInput(priv *secp256k1.PrivateKey, digest []byte) string {
	return hex.EncodeToString(ecdsa.Sign(priv, digest).Serialize())
}

// VerifyInput checks a hex DER attestation against the verifier key.
func VerifyInput(pubHex string, digest []byte, proofHex string) error {
	pub, err := ParseVerifierKey(pubHex)
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(strip0x(proofHex))
	if err != nil {
		return fmt.Errorf("proof hex: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return fmt.Errorf("proof: %w", err)
	}
	if !sig.Verify(digest, pub) {
		return fmt.Errorf("input proof does not verify")
	}
	return nil
}

func strip0x(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
