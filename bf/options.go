package bf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Options control a single run.
type Options struct {
	// Optimise collapses runs of identical operations before execution.
	Optimise bool `yaml:"optimise"`
	// MaxSteps bounds the number of executed operations plus loop
	// iterations. Zero means no bound.
	MaxSteps uint64 `yaml:"max_steps"`
	// CRLF writes "\r\n" for every '\n' output byte.
	CRLF bool `yaml:"crlf"`
	// Prompt writes a prompt before, and an echo after, every input read.
	Prompt bool `yaml:"prompt"`
}

// ParseOptions decodes YAML options. Unknown keys are an error; an empty
// document yields the zero Options.
func ParseOptions(data []byte) (Options, error) {
	return DecodeOptions(data, Options{})
}

// DecodeOptions decodes YAML options on top of base. Keys missing from the
// document keep their value from base.
func DecodeOptions(data []byte, base Options) (Options, error) {
	opts := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return Options{}, fmt.Errorf("decoding options: %w", err)
	}
	return opts, nil
}

// LoadOptions reads YAML options from a file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	opts, err := ParseOptions(data)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// Encode renders the options as YAML, readable by ParseOptions.
func (o Options) Encode() ([]byte, error) {
	return yaml.Marshal(o)
}
