package export

import (
	"archive/zip"
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/signing"
	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/store"
)

const (
	// MetadataSignature and MetadataSignatureDate are the object metadata
	// headers carrying the content signature over the zip bytes.
	MetadataSignature     = "Signature"
	MetadataSignatureDate = "Signature-Date"
)

// Distributor publishes signed export archives to distribution storage.
type Distributor struct {
	store  store.ObjectStore
	signer *signing.DatedSigner
	log    *logrus.Entry
}

func NewDistributor(st store.ObjectStore, signer *signing.DatedSigner) *Distributor {
	return &Distributor{
		store:  st,
		signer: signer,
		log:    logrus.WithField("component", "distributor"),
	}
}

// Distribute zips the binary payload and its signature list under the fixed
// entry names, signs the zip bytes themselves, and uploads the archive with
// the signature attached as object metadata. The zip is staged through a
// temp file which is removed on every exit path.
func (d *Distributor) Distribute(ctx context.Context, key string, bin, sigList []byte) error {
	tmp, err := os.CreateTemp("", "export-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	zw := zip.NewWriter(tmp)
	for _, entry := range []struct {
		name string
		body []byte
	}{
		{BinEntryName, bin},
		{SigEntryName, sigList},
	} {
		w, err := zw.Create(entry.name)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", entry.name, err)
		}
		if _, err := w.Write(entry.body); err != nil {
			return fmt.Errorf("zip entry %s: %w", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}

	zipBytes, err := os.ReadFile(tmp.Name())
	if err != nil {
		return fmt.Errorf("read temp archive: %w", err)
	}

	// The content signature covers the zip bytes, not the inner entries.
	sig, err := d.signer.Sign(ctx, func(string) []byte { return zipBytes })
	if err != nil {
		return fmt.Errorf("sign archive: %w", err)
	}

	meta := store.Metadata{
		MetadataSignature:     sig.MetadataValue(),
		MetadataSignatureDate: sig.Date,
	}
	if err := d.store.Put(ctx, key, zipBytes, meta); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	d.log.WithFields(logrus.Fields{"key": key, "bytes": len(zipBytes)}).Info("distributed export archive")
	return nil
}
