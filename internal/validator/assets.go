package validator

import (
	"fmt"
	"os"
	"path/filepath"
)

// imageExtensions are tried in order when resolving an asset id to a file.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// DirResolver resolves asset ids against an on-disk layout of
// <root>/<kind>/<id>.<ext>.
type DirResolver struct {
	Root string
}

var _ AssetResolver = DirResolver{}

// Resolve returns the path of the first existing file for the asset id.
func (r DirResolver) Resolve(kind, id string) (string, error) {
	for _, ext := range imageExtensions {
		path := filepath.Join(r.Root, kind, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("asset %s/%s not found under %s", kind, id, r.Root)
}
