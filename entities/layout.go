package entities

import (
	"path"
	"path/filepath"
	"strings"
)

// Directory names of a downloaded dataset. Binaries live under items/,
// annotation sidecars under json/ and each annotation render under a
// directory named after its ViewAnnotationOption (instance/, mask/, ...).
const (
	ItemsDirName = "items"
	JSONDirName  = "json"
)

// ItemPath returns where the binary of the platform filename lives under root.
func ItemPath(root, filename string) string {
	return filepath.Join(root, ItemsDirName, localName(filename))
}

// AnnotationPath returns the sidecar path of the platform filename under root.
func AnnotationPath(root, filename string) string {
	return filepath.Join(root, JSONDirName, withExt(localName(filename), ".json"))
}

// RenderPath returns the path of an annotation render (always PNG) of the
// platform filename under root.
func RenderPath(root, filename string, option ViewAnnotationOption) string {
	return filepath.Join(root, string(option), withExt(localName(filename), ".png"))
}

func localName(filename string) string {
	clean := path.Clean("/" + filepath.ToSlash(filename))
	return filepath.FromSlash(strings.TrimPrefix(clean, "/"))
}

func withExt(p, ext string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ext
}
