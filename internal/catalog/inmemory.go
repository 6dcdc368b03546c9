package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed data/medicines.json
var embeddedCatalog []byte

// EmbeddedStore serves the catalog bundled with the binary. Used for
// local/dev runs where no database is configured.
type EmbeddedStore struct {
	records []MedicineRecord
}

func NewEmbeddedStore() (*EmbeddedStore, error) {
	return newEmbeddedStore(embeddedCatalog)
}

func newEmbeddedStore(raw []byte) (*EmbeddedStore, error) {
	var doc struct {
		Medicines []MedicineRecord `json:"medicines"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse embedded catalog: %w", err)
	}
	if len(doc.Medicines) == 0 {
		return nil, ErrEmptyCatalog
	}
	return &EmbeddedStore{records: doc.Medicines}, nil
}

func (s *EmbeddedStore) Records(_ context.Context) ([]MedicineRecord, error) {
	out := make([]MedicineRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

func (s *EmbeddedStore) Close() error { return nil }
