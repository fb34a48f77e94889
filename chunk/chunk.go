// CLAUDE:SUMMARY Kind-aware text splitting: paragraph/sentence packing with token overlap, plus markdown, repo-tree, and transcript strategies.
// Package chunk splits fetched documents into overlapping segments sized
// for embedding.
//
// Tokens are whitespace-delimited terms, dimensionally compatible with the
// embedder's own accounting. Concatenating chunks with each chunk's
// OverlapPrev leading tokens removed reproduces the source text up to
// whitespace normalization.
package chunk

import (
	"regexp"
	"strings"
)

// Options controls splitting.
type Options struct {
	// MaxTokens is the upper bound per chunk. Default: 512.
	MaxTokens int
	// MinTokens is the lower bound; a trailing remainder below it is merged
	// into the previous chunk when that stays within MaxTokens. Default: 100.
	MinTokens int
	// OverlapTokens is how many trailing tokens of a chunk are repeated at
	// the start of the next. Default: 50.
	OverlapTokens int
}

func (o *Options) defaults() {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.MinTokens <= 0 {
		o.MinTokens = 100
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	} else if o.OverlapTokens == 0 {
		o.OverlapTokens = 50
	}
	if o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = o.MaxTokens / 4
	}
	if o.MinTokens > o.MaxTokens {
		o.MinTokens = o.MaxTokens
	}
}

// Chunk is one split segment.
type Chunk struct {
	Text        string
	Index       int
	TokenCount  int
	OverlapPrev int // leading tokens copied from the previous chunk

	// Strategy extras.
	Heading      string  // nearest markdown heading (SplitMarkdown)
	FilePath     string  // source file (SplitRepo)
	TimestampSec float64 // first transcript segment start (SplitTranscript)
}

// CountTokens counts whitespace-delimited terms.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// EstimateTokens approximates the token count without allocating fields.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := 1
	inSpace := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if !inSpace {
				n++
			}
			inSpace = true
		} else {
			inSpace = false
		}
	}
	return n
}

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// Split divides text into chunks of at most MaxTokens, splitting on
// paragraph boundaries first, then sentences. Sentences are kept intact at
// the leaf; a single sentence beyond MaxTokens is the only case split on
// raw token boundaries.
func Split(text string, opts Options) []Chunk {
	opts.defaults()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if CountTokens(text) <= opts.MaxTokens {
		return []Chunk{{Text: text, TokenCount: CountTokens(text)}}
	}

	var units []string
	for _, para := range splitParagraphs(text) {
		if CountTokens(para) <= opts.MaxTokens {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if CountTokens(sent) <= opts.MaxTokens {
				units = append(units, sent)
				continue
			}
			units = append(units, splitTokens(sent, opts.MaxTokens)...)
		}
	}
	return pack(units, opts)
}

// pack greedily accumulates units into chunks bounded by MaxTokens, adding
// OverlapTokens of trailing context to each subsequent chunk. The overlap
// seed shrinks when a unit would not otherwise fit, so TokenCount never
// exceeds MaxTokens. A trailing remainder below MinTokens is merged forward
// into the previous chunk when the merged chunk stays within MaxTokens.
func pack(units []string, opts Options) []Chunk {
	var chunks []Chunk
	var cur []string
	var prevText string
	curTokens := 0
	overlap := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, "\n\n")
		chunks = append(chunks, Chunk{
			Text:        text,
			Index:       len(chunks),
			TokenCount:  CountTokens(text),
			OverlapPrev: overlap,
		})
		prevText = text
		// Seed the next chunk with trailing overlap tokens.
		if opts.OverlapTokens > 0 {
			tail := lastTokens(text, opts.OverlapTokens)
			cur = []string{tail}
			curTokens = CountTokens(tail)
			overlap = curTokens
		} else {
			cur = nil
			curTokens = 0
			overlap = 0
		}
	}

	for _, u := range units {
		n := CountTokens(u)
		if curTokens > overlap && curTokens+n > opts.MaxTokens {
			flush()
		}
		// The window holds only the overlap seed and the unit still does
		// not fit: shrink the seed rather than exceed MaxTokens.
		if overlap > 0 && curTokens == overlap && curTokens+n > opts.MaxTokens {
			allowed := max(opts.MaxTokens-n, 0)
			if allowed > 0 {
				tail := lastTokens(prevText, allowed)
				cur = []string{tail}
				curTokens = CountTokens(tail)
			} else {
				cur = nil
				curTokens = 0
			}
			overlap = curTokens
		}
		cur = append(cur, u)
		curTokens += n
	}
	// Final flush without seeding a new overlap window.
	if curTokens > overlap || len(chunks) == 0 {
		text := strings.Join(cur, "\n\n")
		chunks = append(chunks, Chunk{
			Text:        text,
			Index:       len(chunks),
			TokenCount:  CountTokens(text),
			OverlapPrev: overlap,
		})
	}

	// Merge a too-small tail into its predecessor when the result still
	// fits within MaxTokens.
	if n := len(chunks); n >= 2 {
		last := chunks[n-1]
		fresh := last.TokenCount - last.OverlapPrev
		if fresh < opts.MinTokens && chunks[n-2].TokenCount+fresh <= opts.MaxTokens {
			prev := &chunks[n-2]
			fresh := dropLeadingTokens(last.Text, last.OverlapPrev)
			if fresh != "" {
				prev.Text = prev.Text + "\n\n" + fresh
				prev.TokenCount = CountTokens(prev.Text)
			}
			chunks = chunks[:n-1]
		}
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	var out []string
	for _, s := range strings.Split(marked, "\x00") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitTokens(text string, max int) []string {
	fields := strings.Fields(text)
	var out []string
	for start := 0; start < len(fields); start += max {
		end := min(start+max, len(fields))
		out = append(out, strings.Join(fields[start:end], " "))
	}
	return out
}

func lastTokens(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) <= n {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[len(fields)-n:], " ")
}

func dropLeadingTokens(text string, n int) string {
	if n <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= n {
		return ""
	}
	return strings.Join(fields[n:], " ")
}
