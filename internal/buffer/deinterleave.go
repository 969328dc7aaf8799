// SPDX-License-Identifier: MIT
package buffer

// Deinterleave copies every channels-th sample of src, starting at index
// channel, into dst and returns the number of samples written. For a chunk of
// whole frames that is len(src)/channels. Extraction stops early if dst is
// too short. Out of range arguments extract nothing.
func Deinterleave(dst, src []float32, channel, channels int) int {
	if channels < 1 || channel < 0 || channel >= channels {
		return 0
	}
	if channels == 1 {
		return copy(dst, src)
	}

	n := 0
	for i := channel; i < len(src) && n < len(dst); i += channels {
		dst[n] = src[i]
		n++
	}
	return n
}

// Mix writes the per-frame mean of all channels of src into dst and returns
// the number of frames written. A trailing partial frame is ignored.
func Mix(dst, src []float32, channels int) int {
	if channels < 1 {
		return 0
	}
	if channels == 1 {
		return copy(dst, src)
	}

	frames := len(src) / channels
	if frames > len(dst) {
		frames = len(dst)
	}
	scale := 1 / float32(channels)
	for f := range frames {
		var sum float32
		base := f * channels
		for c := range channels {
			sum += src[base+c]
		}
		dst[f] = sum * scale
	}
	return frames
}

// Frames returns the number of samples Deinterleave yields for channel given
// an interleaved chunk of total samples.
func Frames(total, channel, channels int) int {
	if channels < 1 || channel < 0 || channel >= channels || total <= channel {
		return 0
	}
	return (total - channel + channels - 1) / channels
}
