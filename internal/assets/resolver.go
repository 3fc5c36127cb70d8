// Package assets resolves logical model asset paths to loadable native
// paths. The bridge treats resolution as an opaque collaborator; the
// directory resolver here is the default implementation.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound reports that a logical asset path resolved to nothing.
var ErrNotFound = errors.New("asset not found")

// Resolver maps a logical asset path to a native-loadable path.
type Resolver interface {
	Resolve(assetPath string) (string, error)
}

// DirResolver resolves assets relative to a root models directory.
// Lookups refuse to escape the root. Names are matched with unicode
// normalization because darwin filesystems report NFD filenames while
// callers usually send NFC.
type DirResolver struct {
	Root string
}

func NewDirResolver(root string) *DirResolver {
	return &DirResolver{Root: root}
}

func (r *DirResolver) Resolve(assetPath string) (string, error) {
	if assetPath == "" {
		return "", fmt.Errorf("%w: empty asset path", ErrNotFound)
	}
	clean := filepath.Clean(filepath.FromSlash(assetPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the model root", ErrNotFound, assetPath)
	}

	full := filepath.Join(r.Root, clean)
	if _, err := os.Stat(full); err == nil {
		return full, nil
	}

	// Retry with normalization-insensitive matching per path element.
	full, err := r.resolveNormalized(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrNotFound, assetPath)
	}
	return full, nil
}

func (r *DirResolver) resolveNormalized(rel string) (string, error) {
	cur := r.Root
	for _, elem := range strings.Split(rel, string(filepath.Separator)) {
		entries, err := os.ReadDir(cur)
		if err != nil {
			return "", err
		}
		want := norm.NFC.String(elem)
		found := ""
		for _, e := range entries {
			if norm.NFC.String(e.Name()) == want {
				found = e.Name()
				break
			}
		}
		if found == "" {
			return "", os.ErrNotExist
		}
		cur = filepath.Join(cur, found)
	}
	if _, err := os.Stat(cur); err != nil {
		return "", err
	}
	return cur, nil
}
