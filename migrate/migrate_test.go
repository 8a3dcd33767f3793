package migrate

import (
	"io/ioutil"
	"path"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	"github.com/iwate150/assetsync/canonical"
	"github.com/iwate150/assetsync/manifest"
	"github.com/iwate150/assetsync/store"
)

// testItems writes one local file per storage path and returns the
// matching manifest entries.
func testItems(t *testing.T, names ...string) []manifest.AssetItem {
	t.Helper()
	dir := t.TempDir()
	var items []manifest.AssetItem
	for _, name := range names {
		p := filepath.Join(dir, path.Base(name))
		if err := ioutil.WriteFile(p, []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
		items = append(items, manifest.AssetItem{
			LocalPath:   p,
			StoragePath: name,
			UploadKey:   canonical.ObjectKey(name),
			ByteSize:    int64(len(name)),
			Source:      manifest.SourceLegacy,
			Variant:     manifest.VariantFull,
		})
	}
	return items
}

// scriptedStore wraps a Memory store and fails Upload calls according to
// a playbook, in the manner of the ErrorServer used by the storage
// client tests. A play may mark the write as having landed server-side
// anyway, which models the ambiguous-success case.
type scriptedStore struct {
	*store.Memory
	count int
	plays []uploadPlay
}

type uploadPlay struct {
	when int
	err  error
	land bool
}

func (s *scriptedStore) Upload(key string, data []byte, opts store.UploadOptions) error {
	n := s.count
	s.count++
	for len(s.plays) > 0 && s.plays[0].when <= n {
		p := s.plays[0]
		s.plays = s.plays[1:]
		if p.when < n {
			continue
		}
		if p.land {
			s.Memory.Put(key, data)
		}
		return p.err
	}
	return s.Memory.Upload(key, data, opts)
}

// mimeFilterStore rejects uploads using any of the given content types.
type mimeFilterStore struct {
	*store.Memory
	rejected map[string]bool
}

func (s *mimeFilterStore) Upload(key string, data []byte, opts store.UploadOptions) error {
	if s.rejected[opts.ContentType] {
		return &store.Error{Kind: store.KindContentType, Op: "upload", Key: key,
			Message: "mime type " + opts.ContentType + " is not supported"}
	}
	return s.Memory.Upload(key, data, opts)
}

// runWithMockClock drives a Run under a mock clock, advancing time until
// the run finishes so backoff sleeps do not slow the test down.
func runWithMockClock(t *testing.T, m *Migrator, items []manifest.AssetItem) (Summary, error) {
	t.Helper()
	mock := clock.NewMock()
	m.Clock = mock
	type result struct {
		sum Summary
		err error
	}
	ch := make(chan result, 1)
	go func() {
		sum, err := m.Run(items, Options{})
		ch <- result{sum, err}
	}()
	for {
		select {
		case r := <-ch:
			return r.sum, r.err
		case <-time.After(time.Millisecond):
			mock.Add(time.Second)
		}
	}
}

func TestRunUploadsThenSkips(t *testing.T) {
	ms := store.NewMemory()
	items := testItems(t,
		"images/spots/a.jpg",
		"images/thumb/spots/a.jpg",
		"models/sobacchi.obj",
	)

	m := &Migrator{Store: ms}
	sum, err := m.Run(items, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Uploaded != 3 || sum.Skipped != 0 {
		t.Error("expected 3 uploads, received", sum)
	}
	if ok, _ := ms.BucketExists(); !ok {
		t.Error("expected bucket to be created")
	}
	if ct := ms.ContentType("images/spots/a.jpg"); ct != "image/jpeg" {
		t.Error("expected image/jpeg, received", ct)
	}

	// a second run over the same tree does no network writes
	m2 := &Migrator{Store: ms}
	sum, err = m2.Run(items, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Uploaded != 0 || sum.Skipped != 3 {
		t.Error("expected everything skipped on rerun, received", sum)
	}
}

func TestRunDryRun(t *testing.T) {
	ms := store.NewMemory()
	items := testItems(t, "images/spots/a.jpg")
	m := &Migrator{Store: ms}
	sum, err := m.Run(items, Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Uploaded != 0 || sum.Skipped != 0 {
		t.Error("dry run should not count work, received", sum)
	}
	if keys := ms.Keys(); len(keys) != 0 {
		t.Error("dry run wrote objects", keys)
	}
	if ok, _ := ms.BucketExists(); ok {
		t.Error("dry run created the bucket")
	}
}

func TestRunContentTypeFallback(t *testing.T) {
	ms := &mimeFilterStore{
		Memory:   store.NewMemory(),
		rejected: map[string]bool{"image/svg+xml": true},
	}
	items := testItems(t, "images/other/logo.svg")
	m := &Migrator{Store: ms}
	sum, err := m.Run(items, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Uploaded != 1 {
		t.Error("expected 1 upload, received", sum)
	}
	if ct := ms.ContentType("images/other/logo.svg"); ct != "" {
		t.Error("expected empty content type after fallback, received", ct)
	}
}

func TestRunRetriesTransient(t *testing.T) {
	ms := &scriptedStore{Memory: store.NewMemory()}
	ms.plays = []uploadPlay{
		{when: 0, err: &store.Error{Kind: store.KindTransient, Op: "upload", Message: "504 gateway timeout"}},
		{when: 1, err: &store.Error{Kind: store.KindTransient, Op: "upload", Message: "504 gateway timeout"}},
	}
	items := testItems(t, "images/spots/a.jpg")
	m := &Migrator{Store: ms}
	sum, err := runWithMockClock(t, m, items)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Uploaded != 1 {
		t.Error("expected 1 upload, received", sum)
	}
	if ms.count != 3 {
		t.Error("expected 3 upload attempts, received", ms.count)
	}
}

func TestRunTransientExhausted(t *testing.T) {
	ms := &scriptedStore{Memory: store.NewMemory()}
	for i := 0; i < 8; i++ {
		ms.plays = append(ms.plays, uploadPlay{when: i,
			err: &store.Error{Kind: store.KindTransient, Op: "upload", Message: "timeout"}})
	}
	items := testItems(t, "images/spots/a.jpg")
	m := &Migrator{Store: ms}
	sum, err := runWithMockClock(t, m, items)
	if err == nil {
		t.Fatal("expected run to fail after retry budget")
	}
	if ms.count != 4 {
		t.Error("expected 4 attempts, received", ms.count)
	}
	if !reflect.DeepEqual(sum.Failures, []string{"images/spots/a.jpg"}) {
		t.Error("unexpected failures", sum.Failures)
	}
}

func TestRunAmbiguousResolvedByProbe(t *testing.T) {
	ms := &scriptedStore{Memory: store.NewMemory()}
	ms.plays = []uploadPlay{
		{when: 0, land: true,
			err: &store.Error{Kind: store.KindAmbiguous, Op: "upload",
				Message: "response body was not parseable JSON"}},
	}
	items := testItems(t, "images/spots/a.jpg")
	m := &Migrator{Store: ms}
	sum, err := m.Run(items, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Uploaded != 1 {
		t.Error("expected the probed upload to count, received", sum)
	}
	if ms.count != 1 {
		t.Error("expected no retry after a confirmed write, received", ms.count)
	}
}

func TestRunAmbiguousUnconfirmed(t *testing.T) {
	ms := &scriptedStore{Memory: store.NewMemory()}
	for i := 0; i < 8; i++ {
		ms.plays = append(ms.plays, uploadPlay{when: i,
			err: &store.Error{Kind: store.KindAmbiguous, Op: "upload",
				Message: "response body was not parseable JSON"}})
	}
	items := testItems(t, "images/spots/a.jpg")
	m := &Migrator{Store: ms}
	_, err := runWithMockClock(t, m, items)
	if err == nil {
		t.Fatal("expected run to fail when the probe never confirms")
	}
	if store.Classify(err) != store.KindAmbiguous {
		t.Error("expected ambiguous classification, received", store.Classify(err))
	}
}

func TestRunFatalAborts(t *testing.T) {
	ms := &scriptedStore{Memory: store.NewMemory()}
	ms.plays = []uploadPlay{
		{when: 0, err: &store.Error{Kind: store.KindFatal, Op: "upload",
			Message: "new row violates row-level security policy"}},
	}
	items := testItems(t, "images/spots/a.jpg", "images/spots/b.jpg")
	m := &Migrator{Store: ms}
	sum, err := m.Run(items, Options{})
	if err == nil {
		t.Fatal("expected fatal error to abort the run")
	}
	if ms.count != 1 {
		t.Error("expected no retries on fatal errors, received", ms.count)
	}
	if sum.Uploaded != 0 {
		t.Error("unexpected uploads", sum)
	}
}

func TestContentTypeCandidates(t *testing.T) {
	var table = []struct {
		key  string
		want []string
	}{
		{"images/spots/a.jpg", []string{"image/jpeg", ""}},
		{"images/spots/a.PNG", []string{"image/png", ""}},
		{"models/sobacchi.obj", []string{"text/plain", ""}},
		{"models/unicchi.glb", []string{"model/gltf-binary", ""}},
		{"models/kokucchi.fbx", []string{"application/octet-stream", "text/plain", ""}},
		{"images/other/file.unknownext", []string{""}},
	}
	for _, row := range table {
		got := contentTypeCandidates(row.key)
		if !reflect.DeepEqual(got, row.want) {
			t.Error("candidates for", row.key, "expected", row.want, "received", got)
		}
	}
}
