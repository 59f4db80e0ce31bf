package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lapse-go/internal/lapse"
)

// Dir is a lapse.FragmentSource backed by a directory. An external capture
// pipeline writes each flushed fragment as its own file, using a name that
// sorts in flush order (a zero-padded sequence or timestamp) and renaming it
// into place when complete. Files matching the ignore patterns, such as
// "*.part", are left alone.
type Dir struct {
	path    string
	matcher *IgnoreMatcher
}

var _ lapse.FragmentSource = (*Dir)(nil)

// NewDir creates the spool directory if needed. Patterns from the
// directory's ignore file are appended to the given ones; nil patterns
// means DefaultIgnorePatterns.
func NewDir(path string, patterns []string) (*Dir, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	if patterns == nil {
		patterns = DefaultIgnorePatterns
	}
	extra, err := ParseIgnoreFile(filepath.Join(path, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	all := append(append([]string{}, patterns...), extra...)
	all = append(all, IgnoreFileName)
	return &Dir{path: path, matcher: NewIgnoreMatcher(all)}, nil
}

// Path returns the spool directory.
func (d *Dir) Path() string {
	return d.path
}

// Pending reads every complete fragment in name order.
func (d *Dir) Pending() ([]*lapse.Fragment, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("listing spool: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []*lapse.Fragment
	for _, e := range entries {
		if !e.Type().IsRegular() || d.matcher.Match(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.path, e.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading fragment %s: %w", e.Name(), err)
		}
		out = append(out, &lapse.Fragment{Name: e.Name(), Data: data})
	}
	return out, nil
}

// Ack removes a stored fragment from the spool.
func (d *Dir) Ack(f *lapse.Fragment) error {
	if filepath.Base(f.Name) != f.Name {
		return fmt.Errorf("invalid fragment name %q", f.Name)
	}
	if err := os.Remove(filepath.Join(d.path, f.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing fragment %s: %w", f.Name, err)
	}
	return nil
}
