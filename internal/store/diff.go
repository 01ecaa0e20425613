package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/treykane/ssh-profiles/internal/registry"
)

// Diff returns a unified diff from the file on disk to what Save would
// write. An empty string means the save would not change the file.
func (s *Store) Diff(reg *registry.Registry) (string, error) {
	current, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read %s: %w", s.path, err)
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(reg.Render()),
		FromFile: s.path,
		ToFile:   s.path + " (pending)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", s.path, err)
	}
	return text, nil
}
