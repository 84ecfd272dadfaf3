// Package ahash implements the 64-bit average-hash fingerprint used to seed
// face clustering, plus Hamming-distance comparison between signatures.
package ahash
