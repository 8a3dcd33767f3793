// Package canonical converts the many spellings of an asset path that
// appear in the application (bare relative paths, leading-slash paths,
// and full public download URLs) into a single storage-relative form,
// and then into an ASCII-safe object key.
//
// The same key derivation is used both when uploading assets and when
// verifying database references against a live object listing, so the
// two sides always land in the same key space.
package canonical

import (
	"encoding/hex"
	"net/url"
	"strings"
)

// publicURLMarker separates the storage host from the bucket and object
// key in the public download URLs the storage service hands out.
const publicURLMarker = "/storage/v1/object/public/"

// Normalize reduces a raw path value to its storage-relative form.
// It accepts public storage URLs, paths with a leading slash, and paths
// already relative to the storage root. The second return value is false
// when the input is not an asset path at all; callers should skip such
// values rather than treat them as errors.
func Normalize(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		i := strings.Index(raw, publicURLMarker)
		if i == -1 {
			return "", false
		}
		rest := raw[i+len(publicURLMarker):]
		// the first segment is the bucket name
		j := strings.IndexByte(rest, '/')
		if j == -1 || j+1 == len(rest) {
			return "", false
		}
		key := rest[j+1:]
		if decoded, err := url.PathUnescape(key); err == nil {
			key = decoded
		}
		return key, true
	}
	p := strings.TrimPrefix(raw, "/")
	if strings.HasPrefix(p, "images/") || strings.HasPrefix(p, "models/") {
		return p, true
	}
	return "", false
}

// ObjectKey turns a storage-relative path into an ASCII-safe object key.
// Each path segment is kept as-is if it only uses unreserved ASCII
// characters; otherwise the whole segment is replaced by "u" followed by
// the lowercase hex encoding of its UTF-8 bytes. The encoding is total
// and deterministic, and a key that is already safe encodes to itself,
// so the transform may be reapplied to listing output without drift.
func ObjectKey(p string) string {
	var segments []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		// decoding is best effort; a segment with a stray '%' is
		// used unchanged
		if decoded, err := url.PathUnescape(seg); err == nil {
			seg = decoded
		}
		if !safeSegment(seg) {
			seg = "u" + hex.EncodeToString([]byte(seg))
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "/")
}

// safeSegment reports whether s consists only of ASCII letters, digits,
// '.', '_' and '-'.
func safeSegment(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z':
		case 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
