package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Marshal serialises a profile to its self-describing JSON record. The
// round-trip Unmarshal(Marshal(p)) preserves every field.
func Marshal(p *Profile) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Unmarshal decodes a profile record produced by Marshal.
func Unmarshal(data []byte) (*Profile, error) {
	const op = "baseline.Unmarshal"
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, domain.Wrap(domain.KindValidation, op, err, "malformed baseline record")
	}
	if errs := Validate(&p); len(errs) > 0 {
		return nil, domain.E(domain.KindValidation, op, "invalid baseline record: %v", errs[0])
	}
	return &p, nil
}

// Save writes a profile to dir as baseline_<asset>_<id8>.json and returns
// the file path.
func Save(p *Profile, dir string) (string, error) {
	const op = "baseline.Save"
	data, err := Marshal(p)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, op, err, "encode baseline")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.Wrap(domain.KindInternal, op, err, "create baseline dir")
	}
	id := p.BaselineID
	if len(id) > 8 {
		id = id[:8]
	}
	path := filepath.Join(dir, fmt.Sprintf("baseline_%s_%s.json", p.AssetID, id))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", domain.Wrap(domain.KindInternal, op, err, "write baseline file")
	}
	return path, nil
}

// Load reads a profile previously written by Save.
func Load(path string) (*Profile, error) {
	const op = "baseline.Load"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Wrap(domain.KindNotFound, op, err, "read baseline file")
	}
	return Unmarshal(data)
}
