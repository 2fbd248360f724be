// Package signing produces the asymmetric signatures attached to export
// archives and federation uploads. The signing backend is abstracted behind
// Signer so a remote service (KMS-style) or a local key can sit behind it.
package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/andres-erbsen/clock"
)

// AlgorithmECDSASHA256 identifies ECDSA over P-256 with a SHA-256 digest.
// The only algorithm the export format and the federation gateway accept.
const AlgorithmECDSASHA256 = "ECDSA_SHA_256"

// ErrUnsupportedAlgorithm indicates a signer backend configured with an
// algorithm no consumer can verify. This is a deployment defect, not a
// runtime input error.
var ErrUnsupportedAlgorithm = errors.New("signing: unsupported algorithm")

// Signature is the result of one signing call. KeyID and Algorithm are
// decided by the backend, never by the caller.
type Signature struct {
	KeyID     string
	Algorithm string
	Data      []byte // DER-encoded for ECDSA backends
}

// MetadataValue renders the signature in the form attached to distribution
// objects: keyId="<id>",signature="<base64>".
func (s Signature) MetadataValue() string {
	return fmt.Sprintf("keyId=%q,signature=%q", s.KeyID, base64.StdEncoding.EncodeToString(s.Data))
}

// Signer signs arbitrary content.
type Signer interface {
	Sign(ctx context.Context, content []byte) (Signature, error)
}

// DatedSignature pairs a signature with the canonical date string it was
// produced for.
type DatedSignature struct {
	Signature
	Date string
}

// DatedSigner captures "now" once per signing call and hands the formatted
// date to the content function, so the signed content can embed the same
// date that ends up in the object metadata.
type DatedSigner struct {
	clk    clock.Clock
	signer Signer
}

func NewDatedSigner(clk clock.Clock, signer Signer) *DatedSigner {
	return &DatedSigner{clk: clk, signer: signer}
}

// Sign formats the current time per RFC 2616, obtains the bytes to sign from
// content and delegates to the underlying signer.
func (d *DatedSigner) Sign(ctx context.Context, content func(date string) []byte) (DatedSignature, error) {
	date := d.clk.Now().UTC().Format(http.TimeFormat)
	sig, err := d.signer.Sign(ctx, content(date))
	if err != nil {
		return DatedSignature{}, err
	}
	return DatedSignature{Signature: sig, Date: date}, nil
}

// ECDSASigner signs with a local P-256 key. Stands in for the remote signing
// service in local runs and tests; the Signature shape is identical.
type ECDSASigner struct {
	keyID string
	key   *ecdsa.PrivateKey
}

func NewECDSASigner(keyID string, key *ecdsa.PrivateKey) (*ECDSASigner, error) {
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedAlgorithm, key.Curve.Params().Name)
	}
	return &ECDSASigner{keyID: keyID, key: key}, nil
}

func (s *ECDSASigner) Sign(ctx context.Context, content []byte) (Signature, error) {
	digest := sha256.Sum256(content)
	der, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return Signature{}, fmt.Errorf("sign: %w", err)
	}
	return Signature{KeyID: s.keyID, Algorithm: AlgorithmECDSASHA256, Data: der}, nil
}

// Public returns the verifying key.
func (s *ECDSASigner) Public() *ecdsa.PublicKey { return &s.key.PublicKey }

// LoadPrivateKey reads a PEM-encoded EC private key from path.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an EC private key", path)
	}
	return key, nil
}
