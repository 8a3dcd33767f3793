// Package store provides a small object-storage interface together with
// backends for the Supabase Storage API, Amazon S3 compatible services,
// and an in-memory store for testing.
//
// The interface mirrors the four primitives the migration needs: bucket
// existence/creation, listing, upserting uploads with a content type, and
// signed URL generation. Errors coming out of a backend carry a Kind so
// callers can decide between retrying, trying another content type, or
// giving up, without parsing human-readable messages.
package store

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// An Entry is one row of a listing. A folder marker has no object behind
// it and requires a recursive descent to enumerate its children.
type Entry struct {
	Name     string
	IsFolder bool
}

// UploadOptions control a single Upload call. ContentType may be empty,
// in which case the service is left to pick one itself.
type UploadOptions struct {
	Upsert      bool
	ContentType string
}

// Store is the object-storage interface consumed by the migration and
// verification jobs. Keys are slash-delimited paths relative to the
// bucket root. List returns entries relative to the given prefix.
type Store interface {
	BucketExists() (bool, error)
	CreateBucket(public bool, fileSizeLimit int64) error
	List(prefix string) ([]Entry, error)
	Upload(key string, data []byte, opts UploadOptions) error
	SignedURL(key string, expires time.Duration) (string, error)
}

// ListAll returns every object key in the store, descending through
// folder markers. The result is a flat list since callers need the
// complete set before making any decision.
func ListAll(s Store) ([]string, error) {
	return listAll(s, "")
}

func listAll(s Store, prefix string) ([]string, error) {
	entries, err := s.List(prefix)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, e := range entries {
		name := e.Name
		if prefix != "" {
			name = prefix + "/" + e.Name
		}
		if e.IsFolder {
			children, err := listAll(s, name)
			if err != nil {
				return nil, err
			}
			result = append(result, children...)
			continue
		}
		result = append(result, name)
	}
	return result, nil
}

// ErrorKind classifies a storage failure.
type ErrorKind int

const (
	// KindFatal is anything we don't recognize. Retrying is unlikely to
	// help; it usually means a configuration or permission problem.
	KindFatal ErrorKind = iota

	// KindTransient covers network problems, timeouts and 5xx replies.
	KindTransient

	// KindContentType means the service rejected the MIME type of an
	// upload. Another content-type candidate may succeed.
	KindContentType

	// KindAmbiguous means the request may have succeeded server-side but
	// the response could not be interpreted. An existence probe decides.
	KindAmbiguous
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindContentType:
		return "content-type"
	case KindAmbiguous:
		return "ambiguous"
	}
	return "fatal"
}

// An Error is a storage failure tagged with its kind. Backends return
// *Error for everything they can interpret themselves.
type Error struct {
	Kind    ErrorKind
	Op      string // "upload", "list", ...
	Key     string
	Message string
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("storage %s %s: %s", e.Op, e.Key, e.Message)
}

// message patterns for errors that did not come from one of our backends
var (
	ambiguousPattern = regexp.MustCompile(`(?i)not parseable JSON|unexpected end of JSON|invalid character .* looking for beginning of value`)
	mimePattern      = regexp.MustCompile(`(?i)mime ?type|content[- ]?type .*(not |un)(supported|allowed)`)
	transientPattern = regexp.MustCompile(`(?i)timeout|timed out|temporarily|network|connection (reset|refused)|internal server error|status 5\d\d|EOF`)
)

// Classify maps an error to an ErrorKind. A tagged *Error anywhere in the
// chain wins; otherwise the message is matched against the known failure
// patterns. Classify(nil) panics, check for success first.
func Classify(err error) ErrorKind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	msg := err.Error()
	switch {
	case ambiguousPattern.MatchString(msg):
		return KindAmbiguous
	case mimePattern.MatchString(msg):
		return KindContentType
	case transientPattern.MatchString(msg):
		return KindTransient
	}
	return KindFatal
}
