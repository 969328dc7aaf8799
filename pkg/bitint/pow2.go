// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-two helpers used when sizing FFT
windows and ring buffers. All operations are O(1), allocation free and
safe to call from a capture goroutine.

	size := bitint.NextPowerOfTwo(1000)   // 1024
	ok := bitint.IsPowerOfTwo(size)       // true
	lo := bitint.PrevPowerOfTwo(1000)     // 512

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves (8 -> 8, not 16).
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Non-positive sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of two <= size.
// Non-positive sizes return 1.
func PrevPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two.
// A power of two has a single set bit, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns log2(n) for a power of two n, or -1 otherwise.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
