// CLAUDE:SUMMARY Transcript splitting: segment aggregation to size bounds, first-segment timestamp retained.
package chunk

import "strings"

// Segment is one timestamped transcript piece from the transcript provider.
type Segment struct {
	StartSec float64 `json:"start"`
	Text     string  `json:"text"`
}

// SplitTranscript aggregates transcript segments into chunks: segments are
// appended until the next one would push past MaxTokens and the current
// window has reached MinTokens. Each chunk keeps the start timestamp of its
// first segment. The final window joins the previous chunk when it falls
// below MinTokens.
func SplitTranscript(segments []Segment, opts Options) []Chunk {
	opts.defaults()

	var chunks []Chunk
	var cur []string
	curTokens := 0
	startSec := 0.0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, " ")
		chunks = append(chunks, Chunk{
			Text:         text,
			Index:        len(chunks),
			TokenCount:   CountTokens(text),
			TimestampSec: startSec,
		})
		cur = nil
		curTokens = 0
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n := CountTokens(text)
		if len(cur) == 0 {
			startSec = seg.StartSec
		}
		if curTokens >= opts.MinTokens && curTokens+n > opts.MaxTokens {
			flush()
			startSec = seg.StartSec
		}
		cur = append(cur, text)
		curTokens += n
	}
	flush()

	if n := len(chunks); n >= 2 && chunks[n-1].TokenCount < opts.MinTokens {
		prev := &chunks[n-2]
		prev.Text = prev.Text + " " + chunks[n-1].Text
		prev.TokenCount = CountTokens(prev.Text)
		chunks = chunks[:n-1]
	}
	return chunks
}
