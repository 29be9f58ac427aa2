package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// PrintYAML renders data as YAML with two-space indentation, matching the
// layout of the daemon's config files.
func PrintYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(data)
}
