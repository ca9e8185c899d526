package leads

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/models"
)

// DecodeBatch parses a JSON array of lead objects. Numbers are kept as
// json.Number so identifiers and phone numbers survive unchanged.
func DecodeBatch(raw []byte) ([]models.LeadRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, &errors.ErrEmptyBatch{Reason: "leads must be a non-empty array"}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &errors.ErrInvalidInput{Field: "leads", Reason: err.Error()}
	}
	if len(items) == 0 {
		return nil, &errors.ErrEmptyBatch{Reason: "leads must be a non-empty array"}
	}

	batch := make([]models.LeadRecord, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, &errors.ErrInvalidInput{Field: fmt.Sprintf("leads[%d]", i), Reason: "must be an object"}
		}
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var lead models.LeadRecord
		if err := dec.Decode(&lead); err != nil {
			return nil, &errors.ErrInvalidInput{Field: fmt.Sprintf("leads[%d]", i), Reason: err.Error()}
		}
		batch = append(batch, lead)
	}
	return batch, nil
}
