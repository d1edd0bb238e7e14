package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
)

// Header names carrying a wallet-signed request.
const (
	HeaderWallet    = "X-Wallet-Address"
	HeaderMessage   = "X-Signed-Message"
	HeaderSignature = "X-Wallet-Signature"
)

var ErrBadSignature = errors.New("invalid signature")

// PrefixMessage binds msg to this service so a wallet signature over it
// cannot be replayed as a ledger bundle signature:
// "\x19Nonce Gate Signed Message:\n" + len(msg) + msg.
func PrefixMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Nonce Gate Signed Message:\n%d", len(msg))
	return append([]byte(prefix), msg...)
}

// Verify checks that sig is wallet's signature over the prefixed msg.
func Verify(wallet string, msg, sig []byte) (address.Address, error) {
	addr, err := address.Parse(wallet)
	if err != nil {
		return address.Address{}, err
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(addr.PublicKey(), PrefixMessage(msg), sig) {
		return address.Address{}, ErrBadSignature
	}
	return addr, nil
}

// SignHeaders signs req with priv and returns the three auth headers.
func SignHeaders(priv ed25519.PrivateKey, req SignedRequest) (http.Header, error) {
	msg, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal signed request: %w", err)
	}
	h := make(http.Header)
	h.Set(HeaderWallet, address.FromPublicKey(priv.Public().(ed25519.PublicKey)).String())
	h.Set(HeaderMessage, base64.StdEncoding.EncodeToString(msg))
	h.Set(HeaderSignature, hexutil.Encode(ed25519.Sign(priv, PrefixMessage(msg))))
	return h, nil
}
