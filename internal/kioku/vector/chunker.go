package vector

// Chunk splits text into overlapping fixed-size character windows. The stride
// is window−overlap, so overlap must be strictly smaller than window — this
// is what guarantees forward progress and termination, and NewStore validates
// it at construction time. The final window may be shorter than window.
//
// Windows are measured in runes, not bytes, so multi-byte characters are
// never split.
func Chunk(text string, window, overlap int) []string {
	if text == "" || window <= 0 {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= window {
		return []string{text}
	}

	stride := window - overlap
	var chunks []string
	for start := 0; ; start += stride {
		end := start + window
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		chunks = append(chunks, string(runes[start:end]))
	}
}
