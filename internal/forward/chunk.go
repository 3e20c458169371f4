package forward

import "sort"

// Chunk splits text into ordered pieces whose UTF-8 byte length is at most
// maxBytes, never cutting through a multi-byte character. Concatenating the
// result reproduces text byte for byte.
//
// Each round takes the maximal prefix of the remaining text that fits the
// ceiling, found by binary search over character cut points — cut points are
// character boundaries, not byte offsets, because encoded length varies from
// one to four bytes per character. If a single character alone exceeds
// maxBytes it is emitted as its own chunk, so the split always advances and
// never drops content.
func Chunk(text string, maxBytes int) []string {
	if maxBytes < 1 {
		maxBytes = 1
	}
	if len(text) <= maxBytes {
		return []string{text}
	}

	// Byte offsets of every character boundary, plus the end of the string.
	cuts := make([]int, 0, len(text)+1)
	for i := range text {
		cuts = append(cuts, i)
	}
	cuts = append(cuts, len(text))

	var chunks []string
	start := 0 // index into cuts
	last := len(cuts) - 1
	for start < last {
		limit := cuts[start] + maxBytes
		// Largest n with cuts[start+n]-cuts[start] <= maxBytes.
		n := sort.Search(last-start, func(k int) bool {
			return cuts[start+k+1] > limit
		})
		if n == 0 {
			n = 1 // single character wider than the ceiling
		}
		chunks = append(chunks, text[cuts[start]:cuts[start+n]])
		start += n
	}
	return chunks
}
