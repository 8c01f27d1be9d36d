package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsRoundTrip(t *testing.T) {
	require.NoError(t, OpenDB(t.TempDir()))
	t.Cleanup(func() { CloseDB() })

	creds := map[string]string{"accessKey": "AKIA", "secretKey": "s3cr3t", "bucket": "images", "region": "eu-west-1"}
	require.NoError(t, StoreCredentials("prod-s3", creds))

	got, err := GetCredentials("prod-s3")
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	require.NoError(t, DeleteCredentials("prod-s3"))
	_, err = GetCredentials("prod-s3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialsClosed(t *testing.T) {
	_, err := GetCredentials("x")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, StoreCredentials("x", nil), ErrNotOpen)
}
