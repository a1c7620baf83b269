// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// net_to_bin converts a trained Caffe network (topology .prototxt plus weights .caffemodel) to the
// sequential binary format read by the inference runtime.
//
// Usage:
//
//	net_to_bin [flags] <topology.prototxt> <weights.caffemodel> <output.bin>
//
// Exit codes: 0 on success, 2 for usage errors, 3 if the network can't be loaded, 4 if it has
// unsupported layers or is otherwise invalid, 5 for I/O errors writing the output and 1 for anything else.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/netbin/pkg/caffe"
	"github.com/gomlx/netbin/pkg/core/binfmt"
	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/gomlx/netbin/pkg/exporter"
	"github.com/gomlx/netbin/pkg/layertypes"
	"github.com/gomlx/netbin/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitUsage        = 2
	exitLoad         = 3
	exitInvalidModel = 4
	exitIO           = 5
)

// ArgumentError is a problem with the command line.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string { return e.Reason }

// flags of one run, registered in its own flag.FlagSet.
type flags struct {
	config     string
	phase      caffe.Phase
	level      int
	stages     string
	splits     bool
	inputShape string
	summary    bool
	progress   bool
}

func newFlagSet(stderr io.Writer) (*flag.FlagSet, *flags) {
	flagSet := flag.NewFlagSet("net_to_bin", flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	f := &flags{phase: caffe.PhaseTest, splits: true}
	flagSet.StringVar(&f.config, "config", "", "YAML file with the loader options (phase, level, stages, insert_splits, input_shape). "+
		"Flags set explicitly take precedence.")
	flagSet.Var(&f.phase, "phase", "Phase of the layers to export: TRAIN or TEST.")
	flagSet.IntVar(&f.level, "level", 0, "Level of the network state, matched against the min_level and max_level "+
		"of the layers' include/exclude rules.")
	flagSet.StringVar(&f.stages, "stage", "", "Comma-separated stages of the network state, matched against the "+
		"stage and not_stage of the layers' include/exclude rules.")
	flagSet.BoolVar(&f.splits, "splits", true, "Insert Split layers after tensors consumed by more than one layer.")
	flagSet.StringVar(&f.inputShape, "input_shape", "", "Comma-separated input shape (e.g. 1,3,224,224) "+
		"replacing the one declared by the network.")
	flagSet.BoolVar(&f.summary, "summary", false, "Print a table of the exported layers.")
	flagSet.BoolVar(&f.progress, "progress", false, "Display a progress bar while exporting.")
	klog.InitFlags(flagSet)
	flagSet.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: net_to_bin [flags] <topology.prototxt> <weights.caffemodel> <output.bin>\n\nFlags:\n")
		flagSet.PrintDefaults()
	}
	return flagSet, f
}

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	klog.Flush()
	os.Exit(code)
}

// run executes the command with the given arguments (without the program name) and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	flagSet, f := newFlagSet(stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	err := convert(flagSet, f, stdout, stderr)
	if err == nil {
		return exitOK
	}
	code := exitCode(err)
	if code == exitUsage {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		flagSet.Usage()
		return code
	}
	klog.Errorf("net_to_bin failed: %+v", err)
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return code
}

// exitCode maps the error to the documented exit codes.
func exitCode(err error) int {
	var argErr *ArgumentError
	var writeErr *binfmt.WriteError
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &argErr):
		return exitUsage
	case errors.Is(err, caffe.ErrLoad):
		return exitLoad
	case errors.Is(err, layertypes.ErrUnsupportedLayerType),
		errors.Is(err, layertypes.ErrParamSizeMismatch),
		errors.Is(err, model.ErrInvalidInputShape),
		errors.Is(err, model.ErrInvalidBlob),
		errors.Is(err, model.ErrInvalidModel):
		return exitInvalidModel
	case errors.As(err, &writeErr), errors.As(err, &pathErr):
		return exitIO
	}
	return exitFailure
}

// loaderOptions combines the defaults, the -config file and the flags explicitly set, in this order.
func loaderOptions(flagSet *flag.FlagSet, f *flags) (caffe.Options, error) {
	opts := caffe.DefaultOptions()
	if f.config != "" {
		configPath, err := fsutil.ReplaceTildeInDir(f.config)
		if err != nil {
			return opts, &ArgumentError{Reason: fmt.Sprintf("invalid -config=%q: %v", f.config, err)}
		}
		if opts, err = caffe.ReadConfig(configPath); err != nil {
			return opts, &ArgumentError{Reason: err.Error()}
		}
	}
	var err error
	flagSet.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "phase":
			opts.Phase = f.phase
		case "level":
			opts.Level = f.level
		case "stage":
			opts.Stages = parseStages(f.stages)
		case "splits":
			opts.InsertSplits = f.splits
		case "input_shape":
			if opts.InputShape, err = parseShape(f.inputShape); err != nil {
				err = &ArgumentError{Reason: fmt.Sprintf("invalid -input_shape=%q: %v", f.inputShape, err)}
			}
		}
	})
	return opts, err
}

func parseStages(s string) []string {
	var stages []string
	for _, stage := range strings.Split(s, ",") {
		if stage = strings.TrimSpace(stage); stage != "" {
			stages = append(stages, stage)
		}
	}
	return stages
}

func parseShape(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for ii, part := range parts {
		dim, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if dim <= 0 {
			return nil, errors.Errorf("dimension %d must be positive", dim)
		}
		shape[ii] = dim
	}
	if len(shape) < 4 {
		return nil, errors.Errorf("%d dimensions given, (batch, channels, height, width) required", len(shape))
	}
	return shape, nil
}

func convert(flagSet *flag.FlagSet, f *flags, stdout, stderr io.Writer) error {
	if flagSet.NArg() != 3 {
		return &ArgumentError{Reason: fmt.Sprintf("expected 3 arguments, got %d", flagSet.NArg())}
	}
	paths := make([]string, 3)
	for ii, arg := range flagSet.Args() {
		var err error
		if paths[ii], err = fsutil.ReplaceTildeInDir(arg); err != nil {
			return &ArgumentError{Reason: fmt.Sprintf("invalid path %q: %v", arg, err)}
		}
	}
	topologyPath, weightsPath, outputPath := paths[0], paths[1], paths[2]

	opts, err := loaderOptions(flagSet, f)
	if err != nil {
		return err
	}
	m, err := caffe.Load(topologyPath, weightsPath, opts)
	if err != nil {
		return err
	}

	if exists, err := fsutil.FileExists(outputPath); err != nil {
		return err
	} else if exists {
		klog.V(1).Infof("overwriting %q", outputPath)
	}
	exp := exporter.New(m)
	var bar *progressBar
	if f.progress {
		bar = newProgressBar(stderr, len(m.Layers)-1)
		exp.OnLayer(bar.onLayer)
	}
	report, err := exp.WriteFile(outputPath)
	if bar != nil {
		bar.finish()
	}
	if err != nil {
		return err
	}

	if f.summary {
		printSummary(stdout, m, topologyPath, outputPath, report)
	}
	klog.Infof("wrote %q: %d layers, %s tensors, %s parameters, %s", outputPath, len(report.Layers),
		humanize.Comma(int64(report.NumBlobs)), humanize.Comma(int64(m.NumParams())), humanize.Bytes(uint64(report.Bytes)))
	return nil
}
