// Package export builds the signed zip archives distributed to client
// devices. Each archive holds exactly two entries: export.bin, the binary
// key list, and export.sig, its detached signature list.
package export

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/model"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
)

// Header is the fixed 16-byte ASCII header opening every export.bin.
const Header = "EK Export v1    "

const (
	// BinEntryName and SigEntryName are the fixed zip entry names clients
	// expect.
	BinEntryName = "export.bin"
	SigEntryName = "export.sig"
)

const noDaysSinceOnset = int16(-1)

// EncodeKeys renders the export.bin payload: the Header followed by a
// big-endian key list.
//
// Layout after the header:
//
//	uint32  key count
//	then per key:
//	  [16]byte key material
//	  uint32   rolling start number
//	  uint16   rolling period
//	  uint8    transmission risk level
//	  int16    days since onset of symptoms, -1 when not reported
func EncodeKeys(keys []model.ExposureKey) ([]byte, error) {
	// Writes to a bytes.Buffer cannot fail, so none are checked.
	buf := bytes.NewBufferString(Header)
	binary.Write(buf, binary.BigEndian, uint32(len(keys)))
	for i, k := range keys {
		if len(k.Key) != model.KeySize {
			return nil, fmt.Errorf("key %d: material is %d bytes, want %d", i, len(k.Key), model.KeySize)
		}
		days := noDaysSinceOnset
		if k.DaysSinceOnsetOfSymptoms != nil {
			days = int16(*k.DaysSinceOnsetOfSymptoms)
		}
		buf.Write(k.Key)
		binary.Write(buf, binary.BigEndian, uint32(k.RollingStartNumber))
		binary.Write(buf, binary.BigEndian, uint16(k.RollingPeriod))
		buf.WriteByte(byte(k.TransmissionRiskLevel))
		binary.Write(buf, binary.BigEndian, days)
	}
	return buf.Bytes(), nil
}

type signatureInfo struct {
	KeyID     string `json:"keyId"`
	Algorithm string `json:"algorithm"`
	Signature []byte `json:"signature"`
}

type signatureList struct {
	SignatureInfos []signatureInfo `json:"signatureInfos"`
}

// EncodeSignatureList renders the export.sig payload for a signature over
// the export.bin bytes.
func EncodeSignatureList(sig signing.Signature) ([]byte, error) {
	return json.Marshal(signatureList{
		SignatureInfos: []signatureInfo{{
			KeyID:     sig.KeyID,
			Algorithm: sig.Algorithm,
			Signature: sig.Data,
		}},
	})
}
