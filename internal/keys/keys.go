// Package keys loads the issuer's ed25519 signing key.
//
// The key comes either inline (ISSUER_SIGNING_KEY) or from a key file
// (ISSUER_KEY_FILE). Inline keys are a base58 64-byte keypair or a hex
// 32-byte seed; key files hold the keypair as a JSON array of 64 numbers.
package keys

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
)

// Source says where to read the key from. Inline wins over File.
type Source struct {
	Inline string
	File   string
}

// Key is a loaded issuer key.
type Key struct {
	Private ed25519.PrivateKey
	Address address.Address
}

var (
	mu        sync.Mutex
	cachedKey *Key
)

// Get loads the key from src once and caches it for the process lifetime.
// Errors are not cached, so a missing key file can be fixed and retried.
func Get(src Source) (*Key, error) {
	mu.Lock()
	defer mu.Unlock()
	if cachedKey != nil {
		return cachedKey, nil
	}
	k, err := src.Load()
	if err != nil {
		return nil, err
	}
	cachedKey = k
	return k, nil
}

// Load reads the key without caching.
func (s Source) Load() (*Key, error) {
	var (
		priv ed25519.PrivateKey
		err  error
	)
	switch {
	case s.Inline != "":
		priv, err = parseInline(strings.TrimSpace(s.Inline))
	case s.File != "":
		priv, err = readFile(s.File)
	default:
		return nil, fmt.Errorf("keys: no signing key configured")
	}
	if err != nil {
		return nil, err
	}
	return &Key{Private: priv, Address: address.FromPublicKey(priv.Public().(ed25519.PublicKey))}, nil
}

func parseInline(raw string) (ed25519.PrivateKey, error) {
	if h := strings.TrimPrefix(raw, "0x"); len(h) == 2*ed25519.SeedSize {
		seed, err := hexutil.Decode("0x" + h)
		if err == nil {
			return ed25519.NewKeyFromSeed(seed), nil
		}
	}
	b := base58.Decode(raw)
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keys: signing key must be a base58 64-byte keypair or a hex 32-byte seed")
	}
	return keypair(b)
}

func readFile(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}
	// []byte would expect a base64 string, not an array of numbers.
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("keys: parse %s: %w", path, err)
	}
	nums := make([]byte, 0, len(ints))
	for _, n := range ints {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("keys: %s: byte value %d out of range", path, n)
		}
		nums = append(nums, byte(n))
	}
	if len(nums) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keys: %s holds %d bytes, want %d", path, len(nums), ed25519.PrivateKeySize)
	}
	return keypair(nums)
}

// keypair checks that the public half matches the seed.
func keypair(b []byte) (ed25519.PrivateKey, error) {
	priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if string(priv[ed25519.SeedSize:]) != string(b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keys: public key does not match seed")
	}
	return priv, nil
}
