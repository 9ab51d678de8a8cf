package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Read parses the JSON file at path into v. Comments and trailing commas
// are tolerated so hand-edited store files survive a careless editor.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Unmarshal(data, v)
}

// Unmarshal decodes data into v after stripping JSONC syntax.
func Unmarshal(data []byte, v any) error {
	stripped := jsonc.ToJSON(data)
	if err := json.Unmarshal(stripped, v); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}
