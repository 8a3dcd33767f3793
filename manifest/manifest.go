// Package manifest discovers the locally stored media assets scattered
// across the legacy and current directory trees and builds the
// canonical, deduplicated manifest the upload orchestrator works from.
//
// Legacy assets are authoritative; assets from the current public tree
// are only a fallback for paths the legacy tree does not produce.
package manifest

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/iwate150/assetsync/canonical"
)

// Source records which tree an asset was found in.
type Source string

const (
	SourceLegacy Source = "legacy"
	SourcePublic Source = "public"
)

// Variant distinguishes full images from their thumbnail aliases.
type Variant string

const (
	VariantFull  Variant = "full"
	VariantThumb Variant = "thumb"
)

// An AssetItem is one object to upload. StoragePath is unique within a
// manifest and UploadKey is its canonical object key. A thumb entry
// shares LocalPath and ByteSize with its full sibling: thumbnails are
// byte-identical mirrors of the original, not resized images.
type AssetItem struct {
	LocalPath   string  `json:"local_path"`
	StoragePath string  `json:"storage_path"`
	UploadKey   string  `json:"upload_key"`
	ByteSize    int64   `json:"byte_size"`
	Source      Source  `json:"source"`
	Variant     Variant `json:"variant"`
}

// Roots names the four local directory trees the builder scans. A root
// that is empty or does not exist on disk is skipped.
type Roots struct {
	LegacyImages string
	LegacyModels string
	PublicImages string
	PublicModels string
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".svg":  true,
}

var modelExtensions = map[string]bool{
	".obj":  true,
	".mtl":  true,
	".fbx":  true,
	".glb":  true,
	".gltf": true,
}

// legacyImageDirs maps the immediate parent directory of a legacy image
// to its canonical category.
var legacyImageDirs = map[string]string{
	"city_images":  "images/cities",
	"genre_images": "images/genres",
	"spot_images":  "images/spots",
}

// legacyExceptions pins individual legacy files to fixed canonical
// paths, checked before the directory rules. top_image.jpg is the site
// hero image; it lives inside city_images/ in the legacy tree but is
// not a city icon.
var legacyExceptions = map[string]string{
	"top_image.jpg": "images/other/top_image.jpg",
}

// A localFile is one file found while walking a root.
type localFile struct {
	path string // path on disk
	rel  string // slash-separated path relative to the root
	size int64
}

// Build scans the configured roots and returns the deduplicated
// manifest sorted by storage path. The result is deterministic for
// fixed filesystem contents.
func Build(roots Roots) ([]AssetItem, error) {
	byPath := make(map[string]AssetItem)

	passes := []struct {
		root    string
		source  Source
		exts    map[string]bool
		mapping func(localFile) string
	}{
		{roots.LegacyImages, SourceLegacy, imageExtensions, legacyImagePath},
		{roots.LegacyModels, SourceLegacy, modelExtensions, modelPath},
		{roots.PublicImages, SourcePublic, imageExtensions, publicImagePath},
		{roots.PublicModels, SourcePublic, modelExtensions, modelPath},
	}

	for _, pass := range passes {
		if pass.root == "" {
			continue
		}
		if _, err := os.Stat(pass.root); os.IsNotExist(err) {
			continue
		}
		files, err := listFiles(pass.root)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if !pass.exts[strings.ToLower(path.Ext(f.rel))] {
				continue
			}
			storagePath := pass.mapping(f)
			insert(byPath, AssetItem{
				LocalPath:   f.path,
				StoragePath: storagePath,
				UploadKey:   canonical.ObjectKey(storagePath),
				ByteSize:    f.size,
				Source:      pass.source,
				Variant:     VariantFull,
			})
		}
	}

	addThumbAliases(byPath)

	items := make([]AssetItem, 0, len(byPath))
	for _, item := range byPath {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StoragePath < items[j].StoragePath })
	return items, nil
}

// insert applies the dedup rule: a legacy entry replaces a public one
// holding the same storage path; otherwise the entry already present
// wins.
func insert(byPath map[string]AssetItem, item AssetItem) {
	existing, ok := byPath[item.StoragePath]
	if ok && !(existing.Source == SourcePublic && item.Source == SourceLegacy) {
		return
	}
	byPath[item.StoragePath] = item
}

// addThumbAliases synthesizes an images/thumb/ entry for every image not
// already under images/thumb/. The aliases point at the same local file:
// real downscaling is a planned enhancement, and mirroring the original
// keeps bandwidth characteristics unchanged until then.
func addThumbAliases(byPath map[string]AssetItem) {
	var fulls []AssetItem
	for _, item := range byPath {
		fulls = append(fulls, item)
	}
	for _, item := range fulls {
		rest, ok := strings.CutPrefix(item.StoragePath, "images/")
		if !ok || strings.HasPrefix(rest, "thumb/") {
			continue
		}
		thumb := "images/thumb/" + rest
		if _, ok := byPath[thumb]; ok {
			continue
		}
		byPath[thumb] = AssetItem{
			LocalPath:   item.LocalPath,
			StoragePath: thumb,
			UploadKey:   canonical.ObjectKey(thumb),
			ByteSize:    item.ByteSize,
			Source:      item.Source,
			Variant:     VariantThumb,
		}
	}
}

func legacyImagePath(f localFile) string {
	base := path.Base(f.rel)
	if fixed, ok := legacyExceptions[base]; ok {
		return fixed
	}
	parent := path.Base(path.Dir(f.rel))
	if category, ok := legacyImageDirs[parent]; ok {
		return category + "/" + base
	}
	return "images/other/" + base
}

func publicImagePath(f localFile) string {
	return "images/" + f.rel
}

func modelPath(f localFile) string {
	return "models/" + f.rel
}

// listFiles recursively enumerates the files under root, returning a
// flat list. The whole list is needed before any decision is made, so
// there is no benefit to streaming.
func listFiles(root string) ([]localFile, error) {
	return listDir(root, "")
}

func listDir(root, rel string) ([]localFile, error) {
	dir := filepath.Join(root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}
	var result []localFile
	for _, e := range entries {
		childRel := e.Name()
		if rel != "" {
			childRel = rel + "/" + e.Name()
		}
		if e.IsDir() {
			children, err := listDir(root, childRel)
			if err != nil {
				return nil, err
			}
			result = append(result, children...)
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", filepath.Join(dir, e.Name()))
		}
		result = append(result, localFile{
			path: filepath.Join(root, filepath.FromSlash(childRel)),
			rel:  childRel,
			size: info.Size(),
		})
	}
	return result, nil
}
