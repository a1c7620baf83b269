package main

import (
	"io"

	"github.com/gomlx/netbin/pkg/core/model"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
var ProgressbarStyle = progressbar.ThemeASCII

// progressBar displays the layers exported so far.
type progressBar struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// newProgressBar for numLayers layers. ANSI codes are only used if w is a terminal that supports them.
func newProgressBar(w io.Writer, numLayers int) *progressBar {
	ansi := termenv.NewOutput(w).ColorProfile() != termenv.Ascii
	pBar := &progressBar{w: w}
	pBar.bar = progressbar.NewOptions(numLayers,
		progressbar.OptionSetDescription("Exporting"),
		progressbar.OptionUseANSICodes(ansi),
		progressbar.OptionEnableColorCodes(ansi),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("layers"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(w),
	)
	return pBar
}

// onLayer is called by the exporter after each layer is written.
func (pBar *progressBar) onLayer(_ int, layer *model.Layer) {
	pBar.bar.Describe("Exporting " + layer.Name)
	_ = pBar.bar.Add(1)
}

func (pBar *progressBar) finish() {
	_ = pBar.bar.Finish()
	_, _ = io.WriteString(pBar.w, "\n")
}
