package cmd

import (
	"os"

	"gopkg.in/yaml.v3"
)

// yamlOut prints data as a YAML document to stdout.
func yamlOut(data any) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	enc.Encode(data)
	enc.Close()
}
