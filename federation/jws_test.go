package federation

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
)

func TestSignJWS(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := signing.NewECDSASigner("key-123", key)
	require.NoError(t, err)

	payload := []byte(`[{"keyData":"AA=="}]`)
	envelope, err := SignJWS(context.Background(), signer, payload)
	require.NoError(t, err)

	parts := strings.Split(envelope, ".")
	require.Len(t, parts, 3)

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"ES256"}`, string(header))

	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	// ES256 signatures are the raw 64-byte R‖S concatenation over the
	// exact header.payload string.
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	require.Len(t, sig, 64)

	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	assert.True(t, ecdsa.Verify(&key.PublicKey, digest[:], r, s))
}

type fixedAlgSigner struct{ alg string }

func (f fixedAlgSigner) Sign(ctx context.Context, content []byte) (signing.Signature, error) {
	return signing.Signature{KeyID: "k", Algorithm: f.alg, Data: []byte{0x30, 0x00}}, nil
}

func TestSignJWS_RejectsNonES256Backend(t *testing.T) {
	_, err := SignJWS(context.Background(), fixedAlgSigner{alg: "RSA_PKCS1_V1_5_SHA_256"}, []byte("{}"))
	assert.ErrorIs(t, err, signing.ErrUnsupportedAlgorithm)
}
