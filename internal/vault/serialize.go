package vault

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
)

// Serialize returns the registry as an ordered JSON array of Save records,
// sorted by name so the serialized form is canonical: adding and removing a
// save restores the exact prior bytes.
func (r *Registry) Serialize() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// Deserialize loads serialized records into the registry. Every record goes
// through AddSave, so it passes the same validation as a fresh add; records
// failing validation are dropped with a warning instead of failing the whole
// load. Returns the names that were dropped.
func (r *Registry) Deserialize(data []byte) ([]string, error) {
	var records []Save
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode save records: %w", err)
	}

	var dropped []string
	for _, record := range records {
		if _, err := r.AddSave(record.Name, record.Location); err != nil {
			slog.Warn("dropping invalid save record", "name", record.Name, "location", record.Location, "error", err)
			dropped = append(dropped, record.Name)
		}
	}
	return dropped, nil
}
