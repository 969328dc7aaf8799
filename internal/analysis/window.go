// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	applog "audiovis/internal/log"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the weighting curve applied before the FFT.
type WindowFunc int

// Available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
	Rectangular
)

var windowNames = map[WindowFunc]string{
	BartlettHann:    "BartlettHann",
	Blackman:        "Blackman",
	BlackmanNuttall: "BlackmanNuttall",
	Hann:            "Hann",
	Hamming:         "Hamming",
	Lanczos:         "Lanczos",
	Nuttall:         "Nuttall",
	Rectangular:     "Rectangular",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc. Unknown
// names return Hann together with an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	case "rectangular", "none":
		return Rectangular, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// Coefficients returns the window curve of the given length.
func Coefficients(w WindowFunc, size int) []float64 {
	coeffs := make([]float64, size)
	applyWindow(coeffs, w)
	return coeffs
}

// applyWindow fills coeffs with the selected window. The slice is set to 1.0
// first because the gonum functions scale the sequence in place.
func applyWindow(coeffs []float64, w WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	default:
		applog.Warnf("analysis: unknown window function %d, defaulting to Hann", int(w))
		window.Hann(coeffs)
	}
}
