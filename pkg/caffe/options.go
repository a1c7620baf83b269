package caffe

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Phase selects which layers of a network definition are kept, following the include/exclude rules of each layer.
type Phase int32

const (
	PhaseTrain Phase = 0
	PhaseTest  Phase = 1
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseTrain:
		return "TRAIN"
	case PhaseTest:
		return "TEST"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// ParsePhase converts "TRAIN" or "TEST" (case-insensitive) to a Phase.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRAIN":
		return PhaseTrain, nil
	case "TEST":
		return PhaseTest, nil
	}
	return 0, errors.Errorf("invalid phase %q: valid values are TRAIN and TEST", s)
}

// Set implements flag.Value.
func (p *Phase) Set(s string) error {
	phase, err := ParsePhase(s)
	if err != nil {
		return err
	}
	*p = phase
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Phase) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return p.Set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (p Phase) MarshalYAML() (any, error) {
	return p.String(), nil
}

// Options of the loader.
type Options struct {
	// Phase of the layers to keep. Default is PhaseTest.
	Phase Phase `yaml:"phase"`

	// Level and Stages complete the network state, together with Phase: layers whose include (or
	// exclude) rules set "min_level", "max_level", "stage" or "not_stage" are filtered against them.
	// The default is level 0 and no stages.
	Level  int      `yaml:"level,omitempty"`
	Stages []string `yaml:"stages,omitempty"`

	// InsertSplits adds a "Split" layer after every tensor consumed by more than one layer,
	// as the inference runtime expects. Default is true.
	InsertSplits bool `yaml:"insert_splits"`

	// InputShape, if set, replaces the declared input shape (batch, channels, height, width) of
	// a network with a single input.
	InputShape []int `yaml:"input_shape,omitempty"`
}

// DefaultOptions returns the options used by the net_to_bin tool.
func DefaultOptions() Options {
	return Options{Phase: PhaseTest, InsertSplits: true}
}

// ReadConfig reads Options from a YAML file. Fields not in the file keep their default values.
//
// Example:
//
//	phase: TEST
//	stages: [deploy]
//	insert_splits: true
//	input_shape: [1, 3, 224, 224]
func ReadConfig(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "failed to read config file %q", path)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return opts, errors.Wrapf(err, "failed to parse config file %q", path)
	}
	return opts, nil
}
