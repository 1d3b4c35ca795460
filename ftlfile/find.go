package ftlfile

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Ext is the file extension of Fluent resources.
const Ext = ".ftl"

// FindFiles recursively searches root for regular files whose name ends with
// ext and returns their paths in lexical walk order. An empty ext means Ext.
func FindFiles(root, ext string) ([]string, error) {
	if ext == "" {
		ext = Ext
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", root, err)
	}
	return files, nil
}
