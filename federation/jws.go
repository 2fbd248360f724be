package federation

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
)

// es256Header is the fixed JWS protected header. The gateway only accepts
// ES256, which pins the signer backend to ECDSA P-256 / SHA-256.
const es256Header = `{"alg":"ES256"}`

// SignJWS wraps payload in a compact JWS envelope:
// base64url(header).base64url(payload).base64url(signature).
//
// The backend signs the exact header.payload string and emits DER; JWS
// requires the raw concatenated R‖S form, so the signature is transcoded
// before encoding.
func SignJWS(ctx context.Context, signer signing.Signer, payload []byte) (string, error) {
	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString([]byte(es256Header)) + "." + enc.EncodeToString(payload)

	sig, err := signer.Sign(ctx, []byte(signingInput))
	if err != nil {
		return "", err
	}
	if sig.Algorithm != signing.AlgorithmECDSASHA256 {
		return "", fmt.Errorf("%w: %s", signing.ErrUnsupportedAlgorithm, sig.Algorithm)
	}
	raw, err := signing.TranscodeDERToConcat(sig.Data, 64)
	if err != nil {
		return "", fmt.Errorf("transcode signature: %w", err)
	}
	return signingInput + "." + enc.EncodeToString(raw), nil
}
