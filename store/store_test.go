package store

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	var table = []struct {
		err  error
		kind ErrorKind
	}{
		// tagged errors win regardless of message
		{&Error{Kind: KindTransient, Op: "upload", Message: "anything"}, KindTransient},
		{&Error{Kind: KindContentType, Op: "upload", Message: "anything"}, KindContentType},
		{&Error{Kind: KindAmbiguous, Op: "upload", Message: "anything"}, KindAmbiguous},
		// untagged errors fall back to message patterns
		{errors.New("response body was not parseable JSON"), KindAmbiguous},
		{errors.New("mime type image/webp is not supported"), KindContentType},
		{errors.New("net/http: request timed out"), KindTransient},
		{errors.New("read tcp 10.0.0.1: connection reset by peer"), KindTransient},
		{errors.New("service is temporarily unavailable"), KindTransient},
		{errors.New("500 internal server error"), KindTransient},
		{errors.New("permission denied"), KindFatal},
		{errors.New("bucket policy forbids writes"), KindFatal},
	}

	for _, row := range table {
		if kind := Classify(row.err); kind != row.kind {
			t.Error("classify", row.err, "expected", row.kind, "received", kind)
		}
	}
}

func TestMemoryList(t *testing.T) {
	ms := NewMemory()
	ms.Put("images/spots/a.jpg", []byte("a"))
	ms.Put("images/spots/b.jpg", []byte("b"))
	ms.Put("images/thumb/spots/a.jpg", []byte("a"))
	ms.Put("models/sobacchi.obj", []byte("o"))

	top, err := ms.List("")
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{{Name: "images", IsFolder: true}, {Name: "models", IsFolder: true}}
	if len(top) != len(want) {
		t.Fatal("expected", want, "received", top)
	}
	for i := range want {
		if top[i] != want[i] {
			t.Error("entry", i, "expected", want[i], "received", top[i])
		}
	}

	spots, err := ms.List("images/spots")
	if err != nil {
		t.Fatal(err)
	}
	if len(spots) != 2 || spots[0].Name != "a.jpg" || spots[0].IsFolder {
		t.Error("unexpected listing", spots)
	}
}

func TestListAllRecurses(t *testing.T) {
	ms := NewMemory()
	keys := []string{
		"images/spots/a.jpg",
		"images/thumb/spots/a.jpg",
		"images/cities/Morioka_icon.jpg",
		"models/sobacchi.obj",
	}
	for _, k := range keys {
		ms.Put(k, []byte("x"))
	}
	got, err := ListAll(ms)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(keys) {
		t.Fatal("expected", len(keys), "keys, received", got)
	}
	seen := make(map[string]bool)
	for _, k := range got {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			t.Error("missing key", k)
		}
	}
}

func TestMemoryUpsert(t *testing.T) {
	ms := NewMemory()
	if err := ms.Upload("k", []byte("one"), UploadOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := ms.Upload("k", []byte("two"), UploadOptions{}); err == nil {
		t.Error("expected duplicate upload to fail without upsert")
	}
	if err := ms.Upload("k", []byte("two"), UploadOptions{Upsert: true}); err != nil {
		t.Error("expected upsert to succeed, received", err)
	}
	if string(ms.Data("k")) != "two" {
		t.Error("expected upsert to overwrite, received", string(ms.Data("k")))
	}
}
