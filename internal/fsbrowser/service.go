package fsbrowser

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CodeExtensions is the filter the coder panel offers for source files.
var CodeExtensions = []string{"js", "ts", "py", "java", "cs", "cpp", "c", "go", "php", "rb"}

var ErrNotDirectory = errors.New("path is not a directory")

type Item struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

type ListResult struct {
	Path  string `json:"path"`
	Items []Item `json:"items"`
}

// ListOptions selects what List returns besides directories. Extensions
// are matched case-insensitively without the leading dot; empty means all.
type ListOptions struct {
	IncludeFiles bool
	Extensions   []string
	ShowHidden   bool
}

type Service struct{}

func NewService() *Service { return &Service{} }

func (s *Service) Roots() ([]string, error) {
	home, _ := os.UserHomeDir()
	roots := make([]string, 0, 2)
	if strings.TrimSpace(home) != "" {
		roots = append(roots, filepath.Clean(home))
	}
	roots = append(roots, string(filepath.Separator))
	seen := make(map[string]struct{}, len(roots))
	out := make([]string, 0, len(roots))
	for _, p := range roots {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Resolve expands a leading "~" and returns the clean absolute path of an
// existing directory.
func (s *Service) Resolve(path string) (string, error) {
	abs, err := s.absolute(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", ErrNotDirectory
	}
	return abs, nil
}

// ResolveFile is Resolve for regular files.
func (s *Service) ResolveFile(path string) (string, error) {
	abs, err := s.absolute(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if st.IsDir() {
		return "", errors.New("path is a directory")
	}
	return abs, nil
}

func (s *Service) absolute(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", errors.New("path is required")
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[1:])
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// List returns directories first, then matching files, each sorted by name.
func (s *Service) List(path string, opts ListOptions) (ListResult, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return ListResult{}, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ListResult{}, err
	}
	exts := normalizeExtensions(opts.Extensions)
	dirs := make([]Item, 0, len(entries))
	files := make([]Item, 0)
	for _, entry := range entries {
		name := entry.Name()
		if !opts.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		item := Item{Name: name, Path: filepath.Join(resolved, name)}
		if entry.IsDir() {
			item.IsDir = true
			dirs = append(dirs, item)
			continue
		}
		if !opts.IncludeFiles || !entry.Type().IsRegular() {
			continue
		}
		if !matchExtension(name, exts) {
			continue
		}
		files = append(files, item)
	}
	sortItems(dirs)
	sortItems(files)
	return ListResult{Path: resolved, Items: append(dirs, files...)}, nil
}

func (s *Service) Search(base, q string, limit int) ([]Item, error) {
	resolvedBase, err := s.Resolve(base)
	if err != nil {
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(q))
	if query == "" {
		return []Item{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	const maxDepth = 6
	type node struct {
		path  string
		depth int
	}
	queue := []node{{path: resolvedBase, depth: 0}}
	seen := map[string]struct{}{resolvedBase: {}}
	out := make([]Item, 0, limit)

	for len(queue) > 0 && len(out) < limit {
		cur := queue[0]
		queue = queue[1:]
		entries, err := os.ReadDir(cur.path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if len(out) >= limit {
				break
			}
			if !entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
				continue
			}
			name := entry.Name()
			child := filepath.Clean(filepath.Join(cur.path, name))
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			if strings.Contains(strings.ToLower(name), query) {
				out = append(out, Item{Name: name, Path: child, IsDir: true})
			}
			if cur.depth+1 <= maxDepth {
				queue = append(queue, node{path: child, depth: cur.depth + 1})
			}
		}
	}

	sortItems(out)
	return out, nil
}

func normalizeExtensions(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e == "" || e == "*" {
			return nil
		}
		out[e] = struct{}{}
	}
	return out
}

func matchExtension(name string, exts map[string]struct{}) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	_, ok := exts[ext]
	return ok
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}
