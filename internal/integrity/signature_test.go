package integrity

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	provider := NewStaticKeyProvider(map[string][]byte{
		"inst-1": []byte("inst-1-signing-key-32-bytes-long"),
		"inst-2": []byte("inst-2-signing-key-32-bytes-long"),
	}, nil)
	signer, err := NewSigner(provider)
	require.NoError(t, err)
	return signer
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := testSigner(t)
	fp, err := GenerateAt(testFields, "inst-1", testSalt(t), testIssuedAt)
	require.NoError(t, err)

	sig, err := signer.Sign(fp, "inst-1")
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	ok, err := signer.Verify(fp, sig, "inst-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsEveryFlippedByte(t *testing.T) {
	signer := testSigner(t)
	fp, err := GenerateAt(testFields, "inst-1", testSalt(t), testIssuedAt)
	require.NoError(t, err)

	sig, err := signer.Sign(fp, "inst-1")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)

	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0xff
		ok, err := signer.Verify(fp, base64.StdEncoding.EncodeToString(tampered), "inst-1")
		require.NoError(t, err)
		assert.False(t, ok, "flipped byte %d still verified", i)
	}
}

func TestVerifyFailsClosedOnMalformedSignature(t *testing.T) {
	signer := testSigner(t)
	fp, err := GenerateAt(testFields, "inst-1", testSalt(t), testIssuedAt)
	require.NoError(t, err)

	for _, sig := range []string{
		"",
		"not base64 !!!",
		base64.StdEncoding.EncodeToString([]byte("short")),
	} {
		ok, err := signer.Verify(fp, sig, "inst-1")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := signer.Verify(Fingerprint{0x01}, "AAAA", "inst-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyIsIssuerScoped(t *testing.T) {
	signer := testSigner(t)
	fp, err := GenerateAt(testFields, "inst-1", testSalt(t), testIssuedAt)
	require.NoError(t, err)

	sig, err := signer.Sign(fp, "inst-1")
	require.NoError(t, err)

	ok, err := signer.Verify(fp, sig, "inst-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignUnknownIssuerFails(t *testing.T) {
	signer := testSigner(t)
	fp, err := GenerateAt(testFields, "inst-1", testSalt(t), testIssuedAt)
	require.NoError(t, err)

	_, err = signer.Sign(fp, "inst-unknown")
	assert.ErrorIs(t, err, ErrCryptoFailure)

	sig, err := signer.Sign(fp, "inst-1")
	require.NoError(t, err)
	_, err = signer.Verify(fp, sig, "inst-unknown")
	assert.ErrorIs(t, err, ErrCryptoFailure)
}

func TestStaticKeyProviderFallback(t *testing.T) {
	provider := NewStaticKeyProvider(map[string][]byte{
		"inst-1": []byte("inst-1-signing-key-32-bytes-long"),
	}, []byte("shared-fallback-signing-key-32bb"))

	k, err := provider.KeyFor("inst-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("inst-1-signing-key-32-bytes-long"), k)

	k, err = provider.KeyFor("inst-without-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("shared-fallback-signing-key-32bb"), k)
}

func TestNewSignerRequiresProvider(t *testing.T) {
	_, err := NewSigner(nil)
	assert.Error(t, err)
}
