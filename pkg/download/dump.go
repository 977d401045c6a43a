package download

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

// DumpJSON writes an entity's fields to destDir/name.json, pretty-printed
// with sorted keys. Writing is skipped when the file already holds identical
// data, so repeated dumps do not touch the modification time.
func (d *Downloader) DumpJSON(destDir, name string, data map[string]interface{}) error {
	path := filepath.Join(destDir, name+".json")

	encoded, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return err
	}

	if existing, err := os.ReadFile(path); err == nil {
		if bytes.Equal(normalizeJSON(existing), normalizeJSON(encoded)) {
			d.logger.DebugWithFields("metadata unchanged, skipping", map[string]interface{}{
				"path": path,
			})
			return nil
		}
	}

	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return err
	}
	d.logger.DebugWithFields("wrote metadata", map[string]interface{}{
		"path":  path,
		"bytes": len(encoded),
	})
	return nil
}

// normalizeJSON reduces a JSON document to a canonical byte form so
// semantically identical documents compare equal.
func normalizeJSON(data []byte) []byte {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return data
	}
	out, err := json.Marshal(v)
	if err != nil {
		return data
	}
	return out
}
