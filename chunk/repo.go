// CLAUDE:SUMMARY Repository-tree splitting: file boundaries first, blank-line blocks within files.
package chunk

import "strings"

// FileHeaderPrefix marks file boundaries in a concatenated repository tree.
// The repo fetcher emits one such line per file.
const FileHeaderPrefix = "# File: "

// SplitRepo splits a concatenated repository text on file boundaries first;
// each file becomes at least one chunk carrying its path, split internally
// on blank-line-separated blocks. Content before the first header (the
// README section) is treated as its own file.
func SplitRepo(text string, opts Options) []Chunk {
	opts.defaults()

	type fileSection struct {
		path string
		body []string
	}
	var files []fileSection
	cur := fileSection{}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, FileHeaderPrefix) {
			if len(cur.body) > 0 {
				files = append(files, cur)
			}
			cur = fileSection{path: strings.TrimSpace(strings.TrimPrefix(line, FileHeaderPrefix))}
			cur.body = append(cur.body, line)
			continue
		}
		cur.body = append(cur.body, line)
	}
	if len(cur.body) > 0 {
		files = append(files, cur)
	}

	var chunks []Chunk
	for _, f := range files {
		body := strings.TrimSpace(strings.Join(f.body, "\n"))
		if body == "" {
			continue
		}
		for _, c := range splitBlocks(body, opts) {
			c.FilePath = f.path
			c.Index = len(chunks)
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// splitBlocks packs blank-line-separated blocks; a block beyond MaxTokens
// falls back to fixed-size token windows. Code blocks have no sentence
// structure worth preserving.
func splitBlocks(text string, opts Options) []Chunk {
	if CountTokens(text) <= opts.MaxTokens {
		return []Chunk{{Text: text, TokenCount: CountTokens(text)}}
	}
	var units []string
	for _, block := range splitParagraphs(text) {
		if CountTokens(block) <= opts.MaxTokens {
			units = append(units, block)
			continue
		}
		units = append(units, splitTokens(block, opts.MaxTokens)...)
	}
	return pack(units, opts)
}
