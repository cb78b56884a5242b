package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestFromSecretBase58(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	w, err := FromSecret(key.String(), FormatAuto)
	require.NoError(t, err)
	require.True(t, w.PublicKey.Equals(key.PublicKey()))
}

func TestFromSecretJSONArray(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	arr := "["
	for i, b := range []byte(key) {
		if i > 0 {
			arr += ","
		}
		arr += itoa(int(b))
	}
	arr += "]"

	for _, raw := range []string{arr, `"` + arr + `"`} {
		w, err := FromSecret(raw, FormatAuto)
		require.NoError(t, err)
		require.True(t, w.PublicKey.Equals(key.PublicKey()))
	}
}

func TestFromSecretRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"[1,2,3]",         // wrong length
		"[1,2,300]",       // not bytes
		"not-a-valid-key", // base58 of wrong size
	}
	for _, raw := range cases {
		if _, err := FromSecret(raw, FormatAuto); err == nil {
			t.Errorf("FromSecret(%q): expected error", raw)
		}
	}
}

func TestValidateAddress(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	pk, err := ValidateAddress(key.PublicKey().String())
	require.NoError(t, err)
	require.True(t, pk.Equals(key.PublicKey()))

	_, err = ValidateAddress("definitely-not-base58!!")
	require.Error(t, err)
}

func TestRedactAPIKey(t *testing.T) {
	in := "https://rpc.example.com/?api-key=secret123&x=1"
	got := RedactAPIKey(in)
	require.Equal(t, "https://rpc.example.com/?api-key=***&x=1", got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
