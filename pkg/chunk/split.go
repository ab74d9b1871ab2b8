package chunk

import (
	"strings"
	"unicode"
)

const (
	// DefaultMaxChars bounds chunk size; tunable between roughly 600 and
	// 1000 characters.
	DefaultMaxChars = 800

	// remainder chunks smaller than maxChars/remainderDivisor are folded
	// into the previous chunk instead of standing alone
	remainderDivisor = 4
)

// Splitter slices unstructured text into size-bounded chunks along sentence
// boundaries, biased against leaving a tiny orphaned remainder at the end.
type Splitter struct {
	maxChars int
}

// NewSplitter creates a Splitter. maxChars <= 0 selects DefaultMaxChars.
func NewSplitter(maxChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Splitter{maxChars: maxChars}
}

// Split returns the chunks of text, each at most maxChars characters unless
// a single sentence alone exceeds the bound, in which case that sentence
// becomes its own oversized chunk.
func (s *Splitter) Split(text string) []string {
	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
		current.Reset()
	}

	for _, sentence := range sentences {
		add := len(sentence)
		if current.Len() > 0 {
			add++ // joining space
		}
		if current.Len()+add > s.maxChars && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()

	// Fold a tiny tail into the previous chunk rather than keep an
	// orphaned remainder.
	if n := len(chunks); n > 1 && len(chunks[n-1]) < s.maxChars/remainderDivisor {
		chunks[n-2] = chunks[n-2] + " " + chunks[n-1]
		chunks = chunks[:n-1]
	}

	return chunks
}

func splitIntoSentences(text string) []string {
	lines := strings.Split(text, "\n")
	var sentences []string
	var current strings.Builder

	endsSentence := func(s string) bool {
		s = strings.TrimSpace(s)
		return strings.HasSuffix(s, ".") ||
			strings.HasSuffix(s, "!") ||
			strings.HasSuffix(s, "?")
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if current.Len() > 0 {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
			}
			continue
		}

		for _, sentence := range splitLineIntoSentences(trimmed) {
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sentence)

			if endsSentence(sentence) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	var result []string
	for _, sentence := range sentences {
		if strings.TrimSpace(sentence) != "" {
			result = append(result, sentence)
		}
	}

	return result
}

func splitLineIntoSentences(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] == '.' || line[i] == '!' || line[i] == '?' {
			// "1. item" style numeric listings are not sentence ends
			if i > 0 && unicode.IsDigit(rune(line[i-1])) &&
				i+1 < len(line) && line[i+1] == ' ' {
				continue
			}

			j := i + 1
			for j < len(line) && (line[j] == '.' || line[j] == '!' || line[j] == '?') {
				current.WriteByte(line[j])
				j++
			}
			for j < len(line) && (line[j] == '"' || line[j] == '\'' || line[j] == ')' ||
				line[j] == ']' || line[j] == '}') {
				current.WriteByte(line[j])
				j++
			}

			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
			i = j - 1
		}
	}

	remaining := strings.TrimSpace(current.String())
	if remaining != "" {
		sentences = append(sentences, remaining)
	}

	return sentences
}
