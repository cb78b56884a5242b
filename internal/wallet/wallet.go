// Package wallet loads the operating keypair and validates ledger addresses.
package wallet

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet holds the operating keypair.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// SecretFormat forces how the raw secret is interpreted. Empty means
// auto-detect.
type SecretFormat string

const (
	FormatAuto   SecretFormat = ""
	FormatJSON   SecretFormat = "json"
	FormatBase58 SecretFormat = "base58"
)

var jsonArrayLike = regexp.MustCompile(`^\d+(,\d+)+$`)

// FromSecret parses a wallet secret given either as a base58 string or as a
// JSON array of 64 bytes. Surrounding quotes are stripped first; environment
// editors sometimes wrap values in them.
func FromSecret(raw string, format SecretFormat) (*Wallet, error) {
	secret := strings.TrimSpace(raw)
	if secret == "" {
		return nil, fmt.Errorf("wallet secret is empty")
	}
	if (strings.HasPrefix(secret, `"`) && strings.HasSuffix(secret, `"`)) ||
		(strings.HasPrefix(secret, `'`) && strings.HasSuffix(secret, `'`)) {
		secret = strings.TrimSpace(secret[1 : len(secret)-1])
	}

	compact := strings.Join(strings.Fields(secret), "")
	looksLikeArray := strings.HasPrefix(compact, "[") || jsonArrayLike.MatchString(compact)

	if format == FormatJSON || (format == FormatAuto && looksLikeArray) {
		key, err := parseByteArray(compact)
		if err != nil {
			return nil, err
		}
		return fromBytes(key)
	}

	decoded, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet secret: not base58 and not a JSON byte array")
	}
	return fromBytes(decoded)
}

func parseByteArray(compact string) ([]byte, error) {
	if !strings.HasPrefix(compact, "[") {
		compact = "[" + compact + "]"
	}
	var ints []int
	if err := json.Unmarshal([]byte(compact), &ints); err != nil {
		return nil, fmt.Errorf("invalid wallet secret array: %w", err)
	}
	if len(ints) != 64 {
		return nil, fmt.Errorf("wallet secret array must contain exactly 64 numbers, got %d", len(ints))
	}
	out := make([]byte, 64)
	for i, n := range ints {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("wallet secret array must contain bytes (0-255)")
		}
		out[i] = byte(n)
	}
	return out, nil
}

func fromBytes(key []byte) (*Wallet, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("wallet secret must decode to exactly 64 bytes, got %d", len(key))
	}
	priv := solana.PrivateKey(key)
	return &Wallet{PrivateKey: priv, PublicKey: priv.PublicKey()}, nil
}

// SignTransaction signs tx with the operating key. It fails if the
// transaction requires any other signer.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}

// ValidateAddress parses a base58 address and checks that it is a valid
// ed25519 curve point, catching typos before any lamports move toward it.
func ValidateAddress(addr string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parse address %q: %w", addr, err)
	}
	if _, err := new(edwards25519.Point).SetBytes(pk.Bytes()); err != nil {
		return solana.PublicKey{}, fmt.Errorf("address %q is not on the ed25519 curve", addr)
	}
	return pk, nil
}

// RedactAPIKey strips provider API keys from endpoint URLs before logging.
func RedactAPIKey(url string) string {
	for _, param := range []string{"api-key", "apikey", "key"} {
		url = redactParam(url, param)
	}
	return url
}

func redactParam(url, param string) string {
	re := regexp.MustCompile(`(?i)([?&]` + param + `=)[^&]+`)
	return re.ReplaceAllString(url, "${1}***")
}
