package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox("k1")
	require.NoError(t, err)

	sealed, err := box.SealCredentials(Credentials{AccessToken: "xoxb-1"})
	require.NoError(t, err)
	assert.NotContains(t, sealed, "xoxb-1")

	creds, err := box.OpenCredentials(sealed)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-1", creds.AccessToken)
}

func TestBox_WrongKey(t *testing.T) {
	a, _ := NewBox("k1")
	b, _ := NewBox("k2")

	sealed, err := a.Encrypt([]byte("hello"))
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = b.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewBox_EmptyKey(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}
