package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverRoundTrip(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err)

	msg := []byte("covenant request digest")
	sig := signer.Sign(msg)

	principal, err := NewEd25519Verifier().Recover(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Principal(), principal)
}

func TestRecoverRejectsTamperedMessage(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err)

	sig := signer.Sign([]byte("original"))
	_, err = NewEd25519Verifier().Recover([]byte("tampered"), sig)
	assert.ErrorIs(t, err, ErrRecoveryFailed)
}

func TestRecoverRejectsMalformedBlob(t *testing.T) {
	v := NewEd25519Verifier()

	_, err := v.Recover([]byte("m"), "not-hex")
	assert.ErrorIs(t, err, ErrRecoveryFailed)

	_, err = v.Recover([]byte("m"), "abcd")
	assert.ErrorIs(t, err, ErrRecoveryFailed)
}

func TestPrincipalIsNotSignerForeign(t *testing.T) {
	a, err := NewSigner()
	require.NoError(t, err)
	b, err := NewSigner()
	require.NoError(t, err)

	msg := []byte("msg")
	principal, err := NewEd25519Verifier().Recover(msg, a.Sign(msg))
	require.NoError(t, err)
	assert.NotEqual(t, b.Principal(), principal)
}
