// Package signer authenticates ballots with secp256k1 signatures. Keys and signatures
// travel as 0x-prefixed hex strings; every failure is reported as an error or false.
package signer

import (
	"bytes"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// Secp256k1 implements the ballot signature scheme.
type Secp256k1 struct{}

// GenerateKeyPair creates a new key pair and returns both halves hex encoded.
func (Secp256k1) GenerateKeyPair() (privateKey, publicKey string, err error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", errors.Wrap(err, "failed to generate key")
	}
	return hexutil.Encode(crypto.FromECDSA(key)), hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)), nil
}

// Sign signs the Keccak-256 digest of message.
func (Secp256k1) Sign(privateKey, message string) (string, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(Keccak256([]byte(message)), key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign message")
	}
	return hexutil.Encode(sig), nil
}

// Verify reports whether signature was produced over message by the owner of publicKey.
func (Secp256k1) Verify(publicKey, message, signature string) bool {
	pub, err := decodeHex(publicKey)
	if err != nil {
		return false
	}
	if _, err := crypto.UnmarshalPubkey(pub); err != nil {
		return false
	}
	sig, err := decodeHex(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	recovered, err := crypto.SigToPub(Keccak256([]byte(message)), sig)
	if err != nil {
		return false
	}
	return bytes.Equal(crypto.FromECDSAPub(recovered), pub)
}

// PublicKeyOf derives the hex public key that belongs to a hex private key.
func PublicKeyOf(privateKey string) (string, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)), nil
}

// ParsePrivateKey accepts a private key with or without the 0x prefix.
func ParsePrivateKey(keyStr string) (*ecdsa.PrivateKey, error) {
	keyBytes, err := decodeHex(keyStr)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPrivateKey, err.Error())
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPrivateKey, err.Error())
	}
	return key, nil
}

// ValidatePublicKey reports whether s encodes a point on the curve.
func ValidatePublicKey(s string) error {
	pub, err := decodeHex(s)
	if err != nil {
		return errors.Wrap(ErrInvalidPublicKey, err.Error())
	}
	if _, err := crypto.UnmarshalPubkey(pub); err != nil {
		return errors.Wrap(ErrInvalidPublicKey, err.Error())
	}
	return nil
}

// CanonicalPublicKey re-encodes a public key in the form GenerateKeyPair produces:
// lower-case hex of the uncompressed point with a 0x prefix. Every spelling that
// Verify accepts for a key maps to the same string.
func CanonicalPublicKey(s string) (string, error) {
	raw, err := decodeHex(s)
	if err != nil {
		return "", errors.Wrap(ErrInvalidPublicKey, err.Error())
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return "", errors.Wrap(ErrInvalidPublicKey, err.Error())
	}
	return hexutil.Encode(crypto.FromECDSAPub(pub)), nil
}

// Keccak256 computes Keccak-256 hash
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("empty hex string")
	}
	return b, nil
}

var scheme Secp256k1

func GenerateKeyPair() (string, string, error) { return scheme.GenerateKeyPair() }

func Sign(privateKey, message string) (string, error) { return scheme.Sign(privateKey, message) }

func Verify(publicKey, message, signature string) bool {
	return scheme.Verify(publicKey, message, signature)
}
