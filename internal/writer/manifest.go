package writer

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ManifestName is the manifest file written beside file outputs.
const ManifestName = "manifest.yaml"

// Manifest records what a run wrote.
type Manifest struct {
	RunID     string          `json:"run_id" yaml:"run_id"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	Format    string          `json:"format" yaml:"format"`
	SRID      int             `json:"srid" yaml:"srid"`
	Layers    []ManifestLayer `json:"layers" yaml:"layers"`
}

// ManifestLayer is one written, or skipped, layer.
type ManifestLayer struct {
	Name         string `json:"name" yaml:"name"`
	Features     int    `json:"features" yaml:"features"`
	GeometryType string `json:"geometry_type,omitempty" yaml:"geometry_type,omitempty"`
	Target       string `json:"target" yaml:"target"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Written returns the names of the layers written without error.
func (m *Manifest) Written() []string {
	var out []string
	for _, l := range m.Layers {
		if l.Error == "" {
			out = append(out, l.Name)
		}
	}
	return out
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "writer: marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "writer: write manifest %s", path)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "writer: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "writer: parse manifest")
	}
	return &m, nil
}
