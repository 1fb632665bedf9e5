package filewalker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ImageExtensions lists the disk image extensions the walker picks up.
var ImageExtensions = map[string]bool{
	".d88": true,
	".d77": true,
	".88d": true,
}

// Walker collects disk images from files and directory trees.
type Walker struct {
	extensions map[string]bool
}

// NewWalker creates a Walker matching ImageExtensions.
func NewWalker() *Walker {
	return &Walker{extensions: ImageExtensions}
}

// Walk returns the images under each path in argument order. A file argument
// is returned as is, whatever its extension; directories are searched
// recursively and their matches sorted by path.
func (w *Walker) Walk(paths ...string) ([]string, error) {
	var images []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat path: %w", err)
		}
		if !info.IsDir() {
			images = append(images, p)
			continue
		}

		found, err := w.walkDir(p)
		if err != nil {
			return nil, err
		}
		images = append(images, found...)
	}

	log.Info().Int("count", len(images)).Strs("paths", paths).Msg("Discovered images")
	return images, nil
}

func (w *Walker) walkDir(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error walking path")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if w.extensions[strings.ToLower(filepath.Ext(path))] {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return found, nil
}
