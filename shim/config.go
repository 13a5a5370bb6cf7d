package shim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MarcinKonowalczyk/bftree/bf"
	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

const (
	configFilename = "config.json"
	// optional options file at the root of the image
	rootOptionsFilename = "bf.yaml"
	// merged options handed to the task process, written into the bundle
	taskOptionsFilename = "bf-options.yaml"

	annotationOptimise = "io.containerd.bf.optimise"
	annotationCRLF     = "io.containerd.bf.crlf"
	annotationMaxSteps = "io.containerd.bf.max-steps"
	annotationPrompt   = "io.containerd.bf.prompt"
)

// the parts of the OCI runtime spec the shim reads
type ociSpec struct {
	Root struct {
		Path string `json:"path"`
	} `json:"root"`
	Process struct {
		Args []string `json:"args"`
	} `json:"process"`
	Annotations map[string]string `json:"annotations"`
}

// Config describes the program a task runs.
type Config struct {
	Bundle     string
	Root       string
	Entrypoint string
	Options    bf.Options
	Stats      bf.CompileStats
}

// ReadConfig reads the bundle's config.json and validates the entrypoint
// script. Invalid programs are rejected here, before any process exists.
func ReadConfig(ctx context.Context, bundle string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(bundle, configFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s not found: %w", configFilename, errdefs.ErrNotFound)
		}
		return nil, err
	}
	var spec ociSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configFilename, err)
	}

	if spec.Root.Path == "" {
		return nil, fmt.Errorf("root path not found in config file %s: %w", configFilename, errdefs.ErrInvalidArgument)
	}
	root := spec.Root.Path
	if !filepath.IsAbs(root) {
		root = filepath.Join(bundle, root)
	}

	if len(spec.Process.Args) != 1 {
		return nil, fmt.Errorf("incorrect number of args in the CMD. Expected 1, got %d: %w",
			len(spec.Process.Args), errdefs.ErrInvalidArgument)
	}
	entrypoint := spec.Process.Args[0]
	if ext := filepath.Ext(entrypoint); ext != ".bf" && ext != ".brainfuck" {
		return nil, fmt.Errorf("entry point (%s) is not a .bf file: %w", entrypoint, errdefs.ErrInvalidArgument)
	}

	c := &Config{
		Bundle:     bundle,
		Root:       root,
		Entrypoint: entrypoint,
	}

	if c.Options, err = readOptions(root, spec.Annotations); err != nil {
		return nil, err
	}

	source, err := os.ReadFile(c.FullPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("script %s does not exist: %w", entrypoint, errdefs.ErrNotFound)
		}
		return nil, fmt.Errorf("reading script %s: %w", entrypoint, err)
	}

	_, c.Stats, err = bf.Compile(ctx, string(source), c.Options.Optimise)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", entrypoint, err)
	}
	log.G(ctx).WithField("entrypoint", entrypoint).
		WithField("instructions", c.Stats.Optimised).
		Debug("script validated")

	return c, nil
}

// readOptions starts from the shim defaults, applies the image's bf.yaml and
// then the annotations.
func readOptions(root string, annotations map[string]string) (bf.Options, error) {
	// container consoles expect \r\n
	opts := bf.Options{CRLF: true}

	data, err := os.ReadFile(filepath.Join(root, rootOptionsFilename))
	switch {
	case err == nil:
		if opts, err = bf.DecodeOptions(data, opts); err != nil {
			return bf.Options{}, fmt.Errorf("%s: %w", rootOptionsFilename, errors.Join(err, errdefs.ErrInvalidArgument))
		}
	case !os.IsNotExist(err):
		return bf.Options{}, fmt.Errorf("reading %s: %w", rootOptionsFilename, err)
	}

	bools := map[string]*bool{
		annotationOptimise: &opts.Optimise,
		annotationCRLF:     &opts.CRLF,
		annotationPrompt:   &opts.Prompt,
	}
	for key, dst := range bools {
		v, ok := annotations[key]
		if !ok {
			continue
		}
		if *dst, err = strconv.ParseBool(v); err != nil {
			return bf.Options{}, fmt.Errorf("annotation %s=%q: %w", key, v, errdefs.ErrInvalidArgument)
		}
	}
	if v, ok := annotations[annotationMaxSteps]; ok {
		if opts.MaxSteps, err = strconv.ParseUint(v, 10, 64); err != nil {
			return bf.Options{}, fmt.Errorf("annotation %s=%q: %w", annotationMaxSteps, v, errdefs.ErrInvalidArgument)
		}
	}
	return opts, nil
}

func (c *Config) FullPath() string {
	return filepath.Join(c.Root, c.Entrypoint)
}

func (c *Config) OptionsPath() string {
	return filepath.Join(c.Bundle, taskOptionsFilename)
}

// WriteOptions stores the merged options where the task process reads them.
func (c *Config) WriteOptions() error {
	data, err := c.Options.Encode()
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	return os.WriteFile(c.OptionsPath(), data, 0644)
}

// Args are the arguments the shim binary is started with to run the task.
func (c *Config) Args() []string {
	return []string{TaskSubcommand, "-file", c.FullPath(), "-config", c.OptionsPath()}
}
