// Package ignore decides which project paths are excluded from indexing.
//
// Rules come from configured patterns, .gitignore files (root and nested)
// and the project's .codeindexignore, all in gitignore syntax. The metadata
// directory and .git are always excluded.
package ignore

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/constants"
	gitignore "github.com/sabhiram/go-gitignore"
)

type Matcher struct {
	root        string
	metadataDir string
	patterns    *gitignore.GitIgnore
	ignoreFile  *gitignore.GitIgnore
	useGit      bool

	mu  sync.Mutex
	git map[string]*gitignore.GitIgnore // keyed by slash-separated dir, "" for root
}

// New builds a matcher for root. metadataDir is relative to root.
func New(root string, cfg config.IgnoreConfig, metadataDir string) (*Matcher, error) {
	m := &Matcher{
		root:        root,
		metadataDir: filepath.ToSlash(filepath.Clean(metadataDir)),
		patterns:    gitignore.CompileIgnoreLines(cfg.Patterns...),
		useGit:      cfg.UseGitignore,
		git:         make(map[string]*gitignore.GitIgnore),
	}
	if cfg.UseIgnoreFile {
		gi, err := compileFile(filepath.Join(root, constants.IgnoreFile))
		if err != nil {
			return nil, err
		}
		m.ignoreFile = gi
	}
	return m, nil
}

// Match reports whether rel, a root-relative path, is excluded. A path is
// excluded when it or any ancestor directory matches.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == "" {
		return false
	}
	parts := strings.Split(rel, "/")
	for i := range parts {
		sub := strings.Join(parts[:i+1], "/")
		dir := isDir || i < len(parts)-1
		if m.matchOne(sub, dir) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchOne(rel string, isDir bool) bool {
	base := path.Base(rel)
	if base == ".git" || rel == m.metadataDir {
		return true
	}
	m.mu.Lock()
	ignoreFile := m.ignoreFile
	m.mu.Unlock()
	if matches(m.patterns, rel, isDir) || matches(ignoreFile, rel, isDir) {
		return true
	}
	if !m.useGit {
		return false
	}
	// Each .gitignore applies to paths below its own directory.
	for dir := path.Dir(rel); ; dir = path.Dir(dir) {
		key := dir
		if key == "." {
			key = ""
		}
		sub := strings.TrimPrefix(rel, key+"/")
		if key == "" {
			sub = rel
		}
		if matches(m.gitignoreFor(key), sub, isDir) {
			return true
		}
		if key == "" {
			return false
		}
	}
}

func matches(gi *gitignore.GitIgnore, rel string, isDir bool) bool {
	if gi == nil {
		return false
	}
	if gi.MatchesPath(rel) {
		return true
	}
	return isDir && gi.MatchesPath(rel+"/")
}

func (m *Matcher) gitignoreFor(dir string) *gitignore.GitIgnore {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gi, ok := m.git[dir]; ok {
		return gi
	}
	gi, err := compileFile(filepath.Join(m.root, filepath.FromSlash(dir), ".gitignore"))
	if err != nil {
		gi = nil
	}
	m.git[dir] = gi
	return gi
}

// Invalidate drops cached rules for the directory holding an ignore file
// that changed on disk.
func (m *Matcher) Invalidate(rel string) error {
	rel = filepath.ToSlash(filepath.Clean(rel))
	switch path.Base(rel) {
	case ".gitignore":
		dir := path.Dir(rel)
		if dir == "." {
			dir = ""
		}
		m.mu.Lock()
		delete(m.git, dir)
		m.mu.Unlock()
	case constants.IgnoreFile:
		m.mu.Lock()
		enabled := m.ignoreFile != nil
		m.mu.Unlock()
		if path.Dir(rel) != "." || !enabled {
			return nil
		}
		gi, err := compileFile(filepath.Join(m.root, constants.IgnoreFile))
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.ignoreFile = gi
		m.mu.Unlock()
	}
	return nil
}

// IsRuleFile reports whether rel names a file that changes ignore rules.
func IsRuleFile(rel string) bool {
	base := filepath.Base(rel)
	return base == ".gitignore" || base == constants.IgnoreFile
}

// compileFile returns an empty matcher when path does not exist.
func compileFile(p string) (*gitignore.GitIgnore, error) {
	gi, err := gitignore.CompileIgnoreFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return gitignore.CompileIgnoreLines(), nil
	}
	if err != nil {
		return nil, err
	}
	return gi, nil
}
