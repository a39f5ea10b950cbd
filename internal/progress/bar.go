package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

const barMax = 1000

// Bar renders progress reports on a terminal progress bar.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar creates a progress bar writing to w.
func NewBar(w io.Writer) *Bar {
	bar := progressbar.NewOptions(barMax,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Starting..."),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Bar{bar: bar}
}

// Report implements Func.
func (b *Bar) Report(message string, fraction float64) {
	b.bar.Describe(message)
	_ = b.bar.Set(int(clamp(fraction) * barMax))
}

// Finish completes the bar.
func (b *Bar) Finish() {
	_ = b.bar.Finish()
}
