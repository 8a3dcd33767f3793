package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory implements a simple in-memory version of a store. It is intended
// mainly for testing. Listings synthesize folder markers from key
// prefixes the same way the hosted service does.
type Memory struct {
	m       sync.RWMutex
	objects map[string][]byte
	ctypes  map[string]string
	bucket  bool
}

var _ Store = &Memory{}

// NewMemory returns a new, empty memory store. The bucket does not exist
// until CreateBucket is called.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		ctypes:  make(map[string]string),
	}
}

func (ms *Memory) BucketExists() (bool, error) {
	ms.m.RLock()
	defer ms.m.RUnlock()
	return ms.bucket, nil
}

func (ms *Memory) CreateBucket(public bool, fileSizeLimit int64) error {
	ms.m.Lock()
	ms.bucket = true
	ms.m.Unlock()
	return nil
}

// List returns the immediate children of prefix in name order, with
// folder markers for deeper keys.
func (ms *Memory) List(prefix string) ([]Entry, error) {
	base := prefix
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	files := make(map[string]bool)
	folders := make(map[string]bool)
	ms.m.RLock()
	for k := range ms.objects {
		if !strings.HasPrefix(k, base) {
			continue
		}
		rest := k[len(base):]
		if i := strings.IndexByte(rest, '/'); i != -1 {
			folders[rest[:i]] = true
		} else if rest != "" {
			files[rest] = true
		}
	}
	ms.m.RUnlock()
	var entries []Entry
	for name := range folders {
		entries = append(entries, Entry{Name: name, IsFolder: true})
	}
	for name := range files {
		entries = append(entries, Entry{Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (ms *Memory) Upload(key string, data []byte, opts UploadOptions) error {
	ms.m.Lock()
	defer ms.m.Unlock()
	if _, ok := ms.objects[key]; ok && !opts.Upsert {
		return &Error{Kind: KindFatal, Op: "upload", Key: key,
			Message: "the resource already exists"}
	}
	ms.objects[key] = append([]byte(nil), data...)
	ms.ctypes[key] = opts.ContentType
	return nil
}

func (ms *Memory) SignedURL(key string, expires time.Duration) (string, error) {
	ms.m.RLock()
	_, ok := ms.objects[key]
	ms.m.RUnlock()
	if !ok {
		return "", &Error{Kind: KindFatal, Op: "sign", Key: key, Message: "object not found"}
	}
	return fmt.Sprintf("mem://sign/%s?expires=%d", key, int64(expires.Seconds())), nil
}

// Put seeds an object directly, bypassing Upload. For tests.
func (ms *Memory) Put(key string, data []byte) {
	ms.m.Lock()
	ms.objects[key] = append([]byte(nil), data...)
	ms.m.Unlock()
}

// Keys returns every stored key in sorted order.
func (ms *Memory) Keys() []string {
	ms.m.RLock()
	var keys []string
	for k := range ms.objects {
		keys = append(keys, k)
	}
	ms.m.RUnlock()
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key, if any.
func (ms *Memory) ContentType(key string) string {
	ms.m.RLock()
	defer ms.m.RUnlock()
	return ms.ctypes[key]
}

// Data returns the stored bytes for key, or nil.
func (ms *Memory) Data(key string) []byte {
	ms.m.RLock()
	defer ms.m.RUnlock()
	return ms.objects[key]
}
