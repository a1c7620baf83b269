package caffe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "netbin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParsePhase(t *testing.T) {
	assert.Equal(t, PhaseTrain, must.M1(ParsePhase("train")))
	assert.Equal(t, PhaseTest, must.M1(ParsePhase(" TEST ")))
	_, err := ParsePhase("deploy")
	require.Error(t, err)
	assert.Equal(t, "Phase(7)", Phase(7).String())
}

func TestReadConfig(t *testing.T) {
	opts := must.M1(ReadConfig(writeConfig(t, "phase: train\ninsert_splits: false\ninput_shape: [1, 3, 32, 32]\n")))
	assert.Equal(t, Options{Phase: PhaseTrain, InsertSplits: false, InputShape: []int{1, 3, 32, 32}}, opts)

	// Missing fields keep their defaults.
	opts = must.M1(ReadConfig(writeConfig(t, "input_shape: [1, 1, 8, 8]\n")))
	assert.Equal(t, PhaseTest, opts.Phase)
	assert.True(t, opts.InsertSplits)

	opts = must.M1(ReadConfig(writeConfig(t, "level: 2\nstages: [deploy, quantized]\n")))
	assert.Equal(t, 2, opts.Level)
	assert.Equal(t, []string{"deploy", "quantized"}, opts.Stages)
	assert.Equal(t, PhaseTest, opts.Phase)

	opts = must.M1(ReadConfig(writeConfig(t, "")))
	assert.Equal(t, DefaultOptions(), opts)

	_, err := ReadConfig(writeConfig(t, "phase: deploy\n"))
	require.Error(t, err)
	_, err = ReadConfig(writeConfig(t, "splits: true\n"))
	require.Error(t, err)
	_, err = ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestOptionsYAMLRoundTrip(t *testing.T) {
	opts := Options{Phase: PhaseTrain, Level: 1, Stages: []string{"deploy"}, InsertSplits: true, InputShape: []int{1, 3, 4, 4}}
	data := must.M1(yaml.Marshal(opts))
	assert.Contains(t, string(data), "phase: TRAIN")
	path := writeConfig(t, string(data))
	assert.Equal(t, opts, must.M1(ReadConfig(path)))
}
