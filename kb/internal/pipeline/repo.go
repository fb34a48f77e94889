// CLAUDE:SUMMARY Repository fetcher: sparse shallow clone with full-clone fallback, text-tree concatenation, tip commit id.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/savoir/chunk"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/urlnorm"
)

// Clone budget ceilings. Sparse first for bandwidth, shallow as fallback,
// hard stop at the absolute ceiling.
const (
	sparseCloneTimeout  = 60 * time.Second
	shallowCloneTimeout = 120 * time.Second
	absoluteTimeout     = 180 * time.Second
)

// maxFileBytes caps individual files read from the tree.
const maxFileBytes = 1 << 20

// sparseDirs are the directories worth fetching from a typical repository.
var sparseDirs = []string{
	"docs", "doc", "documentation",
	"examples", "example", "samples",
	"src", "lib", "source",
	"scripts", "bin",
	"notebooks",
	"tests", "test",
}

// ignoredDirs never contain content worth indexing.
var ignoredDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true,
	".venv": true, "venv": true, "dist": true, "build": true,
	"vendor": true, "target": true, ".pytest_cache": true,
	".tox": true, "htmlcov": true, "coverage": true, ".mypy_cache": true,
}

// textExtensions are file types read from the tree.
var textExtensions = map[string]bool{
	".py": true, ".go": true, ".js": true, ".ts": true, ".rs": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".rb": true, ".php": true, ".sh": true, ".sql": true,
	".md": true, ".rst": true, ".txt": true,
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".cfg": true, ".ini": true, ".proto": true, ".ipynb": true,
}

// RepoFetcher acquires repository trees through the local git client.
type RepoFetcher struct {
	// WorkRoot is where temporary clone workspaces live. Default: os temp.
	WorkRoot string
	// GitBin is the git executable. Default: "git" from PATH.
	GitBin string
	Logger *slog.Logger
}

// NewRepoFetcher creates a RepoFetcher.
func NewRepoFetcher(workRoot string, logger *slog.Logger) *RepoFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoFetcher{WorkRoot: workRoot, GitBin: "git", Logger: logger}
}

// Fetch clones the repository shallowly (sparse first), reads its text
// tree, and concatenates files with path headers. The temp workspace is
// removed on every path.
func (r *RepoFetcher) Fetch(ctx context.Context, repoURL string) (*FetchedDocument, error) {
	u, err := urlnorm.Normalize(repoURL)
	if err != nil {
		return nil, fault.Permanent(err)
	}
	owner, name := urlnorm.SplitRepoPath(strings.TrimPrefix(u, "https://"+urlnorm.Domain(u)))
	if owner == "" || name == "" {
		return nil, fault.Permanentf("not a repository URL: %s", repoURL)
	}
	cloneURL := "https://" + urlnorm.Domain(u) + "/" + owner + "/" + name + ".git"

	workRoot := r.WorkRoot
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("repo: workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(workRoot, "repo_"+name+"_")
	if err != nil {
		return nil, fmt.Errorf("repo: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithTimeout(ctx, absoluteTimeout)
	defer cancel()

	if err := r.clone(ctx, cloneURL, dir); err != nil {
		return nil, err
	}

	commit, err := r.git(ctx, dir, 10*time.Second, "rev-parse", "HEAD")
	if err != nil {
		return nil, fault.Transientf("repo: rev-parse: %v", err)
	}

	text, files, err := r.readTree(dir)
	if err != nil {
		return nil, err
	}
	if files == 0 {
		return nil, fault.Permanentf("repo: no readable text files in %s/%s", owner, name)
	}

	sum := sha256.Sum256([]byte(text))
	return &FetchedDocument{
		Text:        text,
		Title:       owner + "/" + name,
		CommitID:    strings.TrimSpace(commit),
		ContentHash: fmt.Sprintf("%x", sum),
	}, nil
}

// RemoteTip returns the remote HEAD commit id without cloning. Used by the
// refresher's cheap check.
func (r *RepoFetcher) RemoteTip(ctx context.Context, repoURL string) (string, error) {
	u, err := urlnorm.Normalize(repoURL)
	if err != nil {
		return "", fault.Permanent(err)
	}
	owner, name := urlnorm.SplitRepoPath(strings.TrimPrefix(u, "https://"+urlnorm.Domain(u)))
	if owner == "" || name == "" {
		return "", fault.Permanentf("not a repository URL: %s", repoURL)
	}
	cloneURL := "https://" + urlnorm.Domain(u) + "/" + owner + "/" + name + ".git"

	out, err := r.git(ctx, "", 30*time.Second, "ls-remote", cloneURL, "HEAD")
	if err != nil {
		return "", fault.Transientf("repo: ls-remote: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fault.Transientf("repo: empty ls-remote output")
	}
	return fields[0], nil
}

// clone tries a sparse shallow checkout within its budget, then falls back
// to a plain shallow clone.
func (r *RepoFetcher) clone(ctx context.Context, cloneURL, dir string) error {
	if err := r.sparseClone(ctx, cloneURL, dir); err == nil {
		return nil
	} else {
		r.Logger.Debug("repo: sparse checkout failed, falling back to shallow", "url", cloneURL, "error", err)
	}

	// Reset the workspace for the fallback.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		os.RemoveAll(filepath.Join(dir, e.Name()))
	}

	if _, err := r.git(ctx, "", shallowCloneTimeout, "clone", "--depth", "1", cloneURL, dir); err != nil {
		if ctx.Err() != nil {
			return fault.Transientf("repo: clone timed out")
		}
		return classifyCloneError(err)
	}
	return nil
}

func (r *RepoFetcher) sparseClone(ctx context.Context, cloneURL, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, sparseCloneTimeout)
	defer cancel()

	if _, err := r.git(ctx, "", sparseCloneTimeout, "clone", "--no-checkout", "--depth", "1", "--filter=blob:none", cloneURL, dir); err != nil {
		return classifyCloneError(err)
	}
	args := append([]string{"sparse-checkout", "set", "--no-cone", "/*", "!/*/"}, sparsePatterns()...)
	if _, err := r.git(ctx, dir, 10*time.Second, args...); err != nil {
		return err
	}
	if _, err := r.git(ctx, dir, sparseCloneTimeout, "checkout"); err != nil {
		return err
	}
	return nil
}

func sparsePatterns() []string {
	patterns := make([]string, 0, len(sparseDirs))
	for _, d := range sparseDirs {
		patterns = append(patterns, "/"+d+"/")
	}
	return patterns
}

func classifyCloneError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "not found") || strings.Contains(msg, "Repository not found") ||
		strings.Contains(msg, "does not exist") || strings.Contains(msg, "Could not resolve host") {
		return fault.Permanentf("repo: %v", err)
	}
	return fault.Transientf("repo: %v", err)
}

// git runs one git command. dir empty runs without a working directory.
func (r *RepoFetcher) git(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := r.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], detail)
	}
	return stdout.String(), nil
}

// readTree walks the workspace and concatenates readable text files with
// path headers, README first.
func (r *RepoFetcher) readTree(dir string) (string, int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if ignoredDirs[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(rel))
		name := strings.ToLower(d.Name())
		if !textExtensions[ext] && !strings.HasPrefix(name, "readme") && !strings.HasPrefix(name, "license") {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("repo: walk: %w", err)
	}

	sort.Slice(paths, func(i, j int) bool {
		ri := strings.HasPrefix(strings.ToLower(filepath.Base(paths[i])), "readme")
		rj := strings.HasPrefix(strings.ToLower(filepath.Base(paths[j])), "readme")
		if ri != rj {
			return ri
		}
		return paths[i] < paths[j]
	})

	var sb strings.Builder
	files := 0
	for _, rel := range paths {
		info, err := os.Stat(filepath.Join(dir, rel))
		if err != nil || info.Size() > maxFileBytes {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil || looksBinary(data) {
			continue
		}
		sb.WriteString(chunk.FileHeaderPrefix)
		sb.WriteString(filepath.ToSlash(rel))
		sb.WriteString("\n\n")
		sb.Write(bytes.TrimSpace(data))
		sb.WriteString("\n\n")
		files++
	}
	return strings.TrimSpace(sb.String()), files, nil
}

// looksBinary flags content with null bytes in its head.
func looksBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
