package retrieval

// Chunk splits text into pieces of at most size runes. Consecutive chunks
// share exactly overlap runes, so dropping the first overlap runes of every
// chunk after the first reassembles the input. A chunk is cut after the last
// sentence terminator when one falls in its second half.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			return append(chunks, string(runes[start:]))
		}
		if cut := lastSentenceEnd(runes[start:end]); cut > size/2 && cut+1 > overlap {
			end = start + cut + 1
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}
}

func lastSentenceEnd(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
