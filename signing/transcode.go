package signing

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// TranscodeDERToConcat converts a DER-encoded ECDSA signature into the raw
// concatenated R‖S form JWS requires. outLen is the total output length,
// 64 for ES256.
func TranscodeDERToConcat(der []byte, outLen int) ([]byte, error) {
	var r, s big.Int
	input := cryptobyte.String(der)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(&r) ||
		!inner.ReadASN1Integer(&s) ||
		!inner.Empty() {
		return nil, fmt.Errorf("malformed DER signature")
	}
	half := outLen / 2
	rb, sb := r.Bytes(), s.Bytes()
	if len(rb) > half || len(sb) > half {
		return nil, fmt.Errorf("signature component longer than %d bytes", half)
	}
	out := make([]byte, outLen)
	copy(out[half-len(rb):half], rb)
	copy(out[outLen-len(sb):], sb)
	return out, nil
}
