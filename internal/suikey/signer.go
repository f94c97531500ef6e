package suikey

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/pbkdf2"
)

// ErrInvalidSecret is returned for sponsor secrets in none of the accepted
// encodings. The message enumerates the accepted forms; it never echoes the
// input.
var ErrInvalidSecret = errors.New(
	"suikey: invalid sponsor secret: expected a 12/24-word mnemonic, a bech32 string prefixed \"suiprivkey\", or 64 hex characters (optional 0x prefix)")

const (
	// ed25519 key scheme flag, prefixed to public keys in addresses and to
	// serialized signatures.
	ed25519Flag byte = 0x00

	privKeyHRP = "suiprivkey"
)

// Default derivation path for mnemonic sponsors: m/44'/784'/0'/0'/0'.
var defaultDerivationPath = []uint32{44, 784, 0, 0, 0}

// Signer holds the sponsor's ed25519 keypair and signs transaction bytes.
type Signer struct {
	priv ed25519.PrivateKey
}

// Parse accepts a sponsor secret in any of the three supported encodings.
func Parse(secret string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrInvalidSecret
	}

	if strings.HasPrefix(secret, privKeyHRP) {
		seed, err := decodeBech32PrivKey(secret)
		if err != nil {
			return nil, ErrInvalidSecret
		}
		return fromSeed(seed)
	}

	if words := strings.Fields(secret); len(words) >= 12 {
		switch len(words) {
		case 12, 15, 18, 21, 24:
			seed, err := deriveMnemonicSeed(strings.Join(words, " "))
			if err != nil {
				return nil, ErrInvalidSecret
			}
			return fromSeed(seed)
		default:
			return nil, ErrInvalidSecret
		}
	}

	h := strings.TrimPrefix(secret, "0x")
	if len(h) == 64 {
		seed, err := hex.DecodeString(h)
		if err != nil {
			return nil, ErrInvalidSecret
		}
		return fromSeed(seed)
	}

	return nil, ErrInvalidSecret
}

func fromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSecret
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Address derives the account address: blake2b-256 over the scheme flag and
// the public key, hex with a 0x prefix.
func (s *Signer) Address() string {
	pub := s.priv.Public().(ed25519.PublicKey)
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, ed25519Flag)
	buf = append(buf, pub...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

// SignTransaction signs base64 transaction bytes under the TransactionData
// signing intent and returns the serialized signature
// (flag || sig || pubkey, base64).
func (s *Signer) SignTransaction(txBytesB64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBytesB64)
	if err != nil {
		return "", fmt.Errorf("suikey: decode tx bytes: %w", err)
	}

	// Intent: scope TransactionData, version 0, app id 0.
	msg := make([]byte, 0, 3+len(txBytes))
	msg = append(msg, 0, 0, 0)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(s.priv, digest[:])
	pub := s.priv.Public().(ed25519.PublicKey)

	serialized := make([]byte, 0, 1+len(sig)+len(pub))
	serialized = append(serialized, ed25519Flag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, pub...)
	return base64.StdEncoding.EncodeToString(serialized), nil
}

func decodeBech32PrivKey(s string) ([]byte, error) {
	hrp, data, err := bech32Decode(s)
	if err != nil {
		return nil, err
	}
	if hrp != privKeyHRP {
		return nil, fmt.Errorf("suikey: unexpected hrp %q", hrp)
	}
	raw, err := convertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(raw) != 33 || raw[0] != ed25519Flag {
		return nil, errors.New("suikey: unexpected private key payload")
	}
	return raw[1:], nil
}

// deriveMnemonicSeed turns a BIP-39 mnemonic into a 32-byte ed25519 seed via
// the SLIP-0010 hierarchy along the default derivation path.
func deriveMnemonicSeed(mnemonic string) ([]byte, error) {
	seed := pbkdf2.Key([]byte(strings.ToLower(mnemonic)), []byte("mnemonic"), 2048, 64, sha512.New)

	key, chainCode := hmacSHA512([]byte("ed25519 seed"), seed)
	for _, index := range defaultDerivationPath {
		hardened := index | 0x80000000
		data := make([]byte, 0, 1+32+4)
		data = append(data, 0x00)
		data = append(data, key...)
		data = append(data,
			byte(hardened>>24), byte(hardened>>16), byte(hardened>>8), byte(hardened))
		key, chainCode = hmacSHA512(chainCode, data)
	}
	return key, nil
}
