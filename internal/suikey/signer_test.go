package suikey

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/blake2b"
)

const testHexSeed = "0x4d3f2a1b5c6e7d8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f708192a3b4c5"

// bech32Encode builds a valid test vector; the production code only decodes.
func bech32Encode(hrp string, data []byte) string {
	grouped, _ := convertBits(data, 8, 5, true)
	values := append(bech32HRPExpand(hrp), grouped...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	polymod := bech32Polymod(values) ^ 1

	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, v := range grouped {
		sb.WriteByte(bech32Charset[v])
	}
	for i := 0; i < 6; i++ {
		sb.WriteByte(bech32Charset[(polymod>>uint(5*(5-i)))&31])
	}
	return sb.String()
}

func TestParse_Hex(t *testing.T) {
	t.Parallel()

	s, err := Parse(testHexSeed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	addr := s.Address()
	if !strings.HasPrefix(addr, "0x") || len(addr) != 66 {
		t.Fatalf("address shape: got %q", addr)
	}

	// Same secret, same address; 0x prefix is optional.
	s2, err := Parse(strings.TrimPrefix(testHexSeed, "0x"))
	if err != nil {
		t.Fatalf("Parse without prefix: %v", err)
	}
	if s2.Address() != addr {
		t.Fatalf("address mismatch: %q vs %q", s2.Address(), addr)
	}
}

func TestParse_Bech32(t *testing.T) {
	t.Parallel()

	hexSigner, err := Parse(testHexSeed)
	if err != nil {
		t.Fatalf("Parse hex: %v", err)
	}

	seed := hexSigner.priv.Seed()
	encoded := bech32Encode(privKeyHRP, append([]byte{ed25519Flag}, seed...))

	s, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse bech32: %v", err)
	}
	if s.Address() != hexSigner.Address() {
		t.Fatalf("bech32 and hex secrets must derive the same address")
	}
}

func TestParse_Mnemonic(t *testing.T) {
	t.Parallel()

	const mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

	s, err := Parse(mnemonic)
	if err != nil {
		t.Fatalf("Parse mnemonic: %v", err)
	}
	addr := s.Address()
	if !strings.HasPrefix(addr, "0x") || len(addr) != 66 {
		t.Fatalf("address shape: got %q", addr)
	}

	// Derivation is deterministic.
	s2, err := Parse(mnemonic)
	if err != nil {
		t.Fatalf("Parse mnemonic again: %v", err)
	}
	if s2.Address() != addr {
		t.Fatalf("mnemonic derivation is not deterministic")
	}

	// A different mnemonic lands on a different key.
	s3, err := Parse("legal winner thank year wave sausage worth useful legal winner thank yellow")
	if err != nil {
		t.Fatalf("Parse other mnemonic: %v", err)
	}
	if s3.Address() == addr {
		t.Fatalf("distinct mnemonics must derive distinct addresses")
	}
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"deadbeef",
		"0x1234",
		"one two three",
		"suiprivkey1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", // bad checksum
		strings.Repeat("zz", 32),                      // 64 chars, not hex
	}
	for _, in := range inputs {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q): expected error", in)
		} else if !strings.Contains(err.Error(), "mnemonic") || !strings.Contains(err.Error(), "suiprivkey") || !strings.Contains(err.Error(), "hex") {
			t.Fatalf("error must enumerate all accepted forms, got %q", err.Error())
		}
	}
}

func TestSignTransaction(t *testing.T) {
	t.Parallel()

	s, err := Parse(testHexSeed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	txBytes := []byte("tx-bytes-under-test")
	txB64 := base64.StdEncoding.EncodeToString(txBytes)

	serialized, err := s.SignTransaction(txB64)
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize {
		t.Fatalf("signature length: got %d", len(raw))
	}
	if raw[0] != ed25519Flag {
		t.Fatalf("scheme flag: got %#x", raw[0])
	}

	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])

	msg := append([]byte{0, 0, 0}, txBytes...)
	digest := blake2b.Sum256(msg)
	if !ed25519.Verify(pub, digest[:], sig) {
		t.Fatalf("signature does not verify over the intent digest")
	}

	if _, err := s.SignTransaction("not base64!"); err == nil {
		t.Fatalf("expected error for malformed tx bytes")
	}
}
