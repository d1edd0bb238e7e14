// cmd/signchecker is an offline parity tool for claim authorizations. It lets
// an independent signer (a browser wallet, another SDK) check that it builds
// the exact payload bytes the airdrop program verifies.
//
// Usage:
//
//	signchecker sign-data <nonce> <amount> <mint> <user> <project> <businessProject>
//	signchecker verify-sign <hexPayload> <hexSignature> <base58PublicKey>
//
// sign-data prints the payload as lowercase hex without a trailing newline;
// verify-sign prints "pass" or "failed".
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/authz"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("signchecker", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	newline := fs.Bool("newline", false, "terminate output with a newline")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	args = fs.Args()

	var (
		out string
		err error
	)
	switch {
	case len(args) == 7 && args[0] == "sign-data":
		out, err = signData(args[1:])
	case len(args) == 4 && args[0] == "verify-sign":
		out, err = verifySign(args[1], args[2], args[3])
	default:
		out = "invalid command"
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *newline {
		out += "\n"
	}
	fmt.Fprint(stdout, out)
	return 0
}

// signData builds the claim payload from nonce, amount and four addresses.
func signData(args []string) (string, error) {
	nonce, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("amount: %w", err)
	}
	var addrs [4]address.Address
	for i, s := range args[2:] {
		if addrs[i], err = address.Parse(s); err != nil {
			return "", fmt.Errorf("address %q: %w", s, err)
		}
	}
	c := authz.Claim{
		Nonce:           uint32(nonce),
		Amount:          amount,
		Mint:            addrs[0],
		Recipient:       addrs[1],
		Project:         addrs[2],
		BusinessProject: addrs[3],
	}
	return hex.EncodeToString(c.Payload()), nil
}

// verifySign reports whether sig is pub's signature over payload. Malformed
// inputs fail verification rather than erroring.
func verifySign(payloadHex, sigHex, pub string) (string, error) {
	payload, err1 := hex.DecodeString(strings.TrimPrefix(payloadHex, "0x"))
	sig, err2 := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	key, err3 := address.Parse(pub)
	if err1 != nil || err2 != nil || err3 != nil {
		return "failed", nil
	}
	if authz.Verify(payload, sig, key.PublicKey()) {
		return "pass", nil
	}
	return "failed", nil
}
