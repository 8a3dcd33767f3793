// Package migrate uploads a built asset manifest to the object store.
//
// The orchestrator is idempotent: it lists the bucket once before any
// write and skips every manifest item whose key already exists, so
// re-running over a partially completed migration is cheap and safe.
// Uploads always request upsert semantics, which is safe because keys
// are content-stable canonical paths.
package migrate

import (
	"io/ioutil"
	"log"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"

	"github.com/iwate150/assetsync/canonical"
	"github.com/iwate150/assetsync/manifest"
	"github.com/iwate150/assetsync/store"
)

// Options control a single run.
type Options struct {
	// DryRun previews what would be uploaded without touching the
	// store. No bucket creation, listing or upload call is made.
	DryRun bool
}

// A Summary reports what a run did.
type Summary struct {
	Uploaded int
	Skipped  int
	Failures []string
}

// A Migrator uploads manifest items into one bucket. The zero value of
// the optional fields picks sensible defaults; Store must be set.
type Migrator struct {
	Store store.Store

	// Clock is used for the retry backoff. Defaults to the wall clock;
	// tests substitute a mock.
	Clock clock.Clock

	// MaxAttempts is the total number of tries per item, including the
	// first. Defaults to 4.
	MaxAttempts int

	// ProgressEvery controls how often progress is logged. Defaults to
	// every 25 items.
	ProgressEvery int

	// BucketSizeLimit is passed to CreateBucket when the bucket has to
	// be created. 0 means no per-object limit.
	BucketSizeLimit int64
}

// Run uploads every manifest item that is not already in the store.
// Items are processed sequentially; the first unrecoverable failure
// aborts the run with the partial summary.
func (m *Migrator) Run(items []manifest.AssetItem, opts Options) (Summary, error) {
	var summary Summary
	if m.Clock == nil {
		m.Clock = clock.New()
	}
	if m.MaxAttempts == 0 {
		m.MaxAttempts = 4
	}
	if m.ProgressEvery == 0 {
		m.ProgressEvery = 25
	}

	if opts.DryRun {
		for _, item := range items {
			log.Printf("dry run: would upload %s (%d bytes, %s %s)",
				item.UploadKey, item.ByteSize, item.Source, item.Variant)
		}
		log.Printf("dry run: %d items in manifest", len(items))
		return summary, nil
	}

	m.ensureBucket()

	// One listing snapshot before any write. Keys seen in the listing
	// are re-canonicalized so they live in the same key space as the
	// manifest's upload keys.
	keys, err := store.ListAll(m.Store)
	if err != nil {
		return summary, errors.Wrap(err, "listing existing objects")
	}
	existing := make(map[string]bool, len(keys))
	for _, k := range keys {
		existing[canonical.ObjectKey(k)] = true
	}

	for i, item := range items {
		if existing[item.UploadKey] {
			summary.Skipped++
		} else {
			data, err := ioutil.ReadFile(item.LocalPath)
			if err != nil {
				summary.Failures = append(summary.Failures, item.UploadKey)
				return summary, errors.Wrapf(err, "reading %s", item.LocalPath)
			}
			if err := m.uploadItem(item, data); err != nil {
				summary.Failures = append(summary.Failures, item.UploadKey)
				return summary, err
			}
			// later duplicate manifest rows resolve via the cache
			existing[item.UploadKey] = true
			summary.Uploaded++
		}
		if (i+1)%m.ProgressEvery == 0 {
			log.Printf("processed %d of %d items: %d uploaded, %d skipped",
				i+1, len(items), summary.Uploaded, summary.Skipped)
		}
	}
	log.Printf("migration complete: %d uploaded, %d skipped of %d items",
		summary.Uploaded, summary.Skipped, len(items))
	return summary, nil
}

// ensureBucket makes sure the target bucket exists. Failures here are
// warnings only: a correctly provisioned bucket is the common case, and
// the upload loop will surface a real problem soon enough.
func (m *Migrator) ensureBucket() {
	ok, err := m.Store.BucketExists()
	if err != nil {
		log.Println("warning: bucket check failed:", err)
		return
	}
	if ok {
		return
	}
	if err := m.Store.CreateBucket(true, m.BucketSizeLimit); err != nil {
		log.Println("warning: bucket create failed:", err)
	}
}

// uploadItem tries the whole content-type candidate chain for one item,
// retrying on transient failures with a growing backoff. An ambiguous
// reply is resolved by probing the listing: if the object is there, the
// write landed despite the malformed response.
func (m *Migrator) uploadItem(item manifest.AssetItem, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= m.MaxAttempts; attempt++ {
		if attempt > 1 {
			m.Clock.Sleep(time.Duration(attempt-1) * time.Second)
		}
		err := m.tryCandidates(item.UploadKey, data)
		if err == nil {
			return nil
		}
		lastErr = err
		switch store.Classify(err) {
		case store.KindTransient:
			log.Printf("transient failure for %s (attempt %d of %d): %s",
				item.UploadKey, attempt, m.MaxAttempts, err)
		case store.KindAmbiguous:
			if m.keyExists(item.UploadKey) {
				return nil
			}
			log.Printf("ambiguous reply for %s not confirmed by listing (attempt %d of %d)",
				item.UploadKey, attempt, m.MaxAttempts)
		default:
			// unrecognized failures likely mean a configuration or
			// permission problem that retrying cannot fix
			return errors.Wrapf(err, "uploading %s", item.UploadKey)
		}
	}
	// one last look before declaring failure
	if store.Classify(lastErr) == store.KindAmbiguous && m.keyExists(item.UploadKey) {
		return nil
	}
	return errors.Wrapf(lastErr, "uploading %s failed after %d attempts",
		item.UploadKey, m.MaxAttempts)
}

// tryCandidates runs one pass over the content-type chain. A rejected
// content type moves to the next candidate; any other failure is
// returned as-is.
func (m *Migrator) tryCandidates(key string, data []byte) error {
	var lastErr error
	for _, ctype := range contentTypeCandidates(key) {
		err := m.Store.Upload(key, data, store.UploadOptions{
			Upsert:      true,
			ContentType: ctype,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if store.Classify(err) != store.KindContentType {
			return err
		}
	}
	return lastErr
}

// keyExists does a follow-up listing of the key's parent directory,
// filtered by base name.
func (m *Migrator) keyExists(key string) bool {
	prefix, base := "", key
	if i := strings.LastIndexByte(key, '/'); i != -1 {
		prefix, base = key[:i], key[i+1:]
	}
	entries, err := m.Store.List(prefix)
	if err != nil {
		log.Println("existence probe failed for", key, "-", err)
		return false
	}
	for _, e := range entries {
		if !e.IsFolder && e.Name == base {
			return true
		}
	}
	return false
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".obj":  "text/plain",
	".mtl":  "text/plain",
	".glb":  "model/gltf-binary",
	".gltf": "model/gltf+json",
	".fbx":  "application/octet-stream",
}

// contentTypeCandidates returns the content types to try, in order. The
// store may reject a MIME type the bucket was not configured to allow,
// so the chain ends with "", meaning no content type at all.
// FBX has no registered MIME type and gets extra fallbacks.
func contentTypeCandidates(key string) []string {
	ext := strings.ToLower(path.Ext(key))
	var candidates []string
	add := func(ct string) {
		for _, c := range candidates {
			if c == ct {
				return
			}
		}
		candidates = append(candidates, ct)
	}
	if ct := mimeTypes[ext]; ct != "" {
		add(ct)
	} else if ct := mime.TypeByExtension(ext); ct != "" {
		add(ct)
	}
	if ext == ".fbx" {
		add("application/octet-stream")
		add("text/plain")
	}
	add("")
	return candidates
}
