package main

import (
	"os"
	"testing"

	"github.com/iwate150/assetsync/store"
)

const (
	typeMemory = iota
	typeSupabase
	typeS3
	typeError
)

func TestSplitBucketPrefix(t *testing.T) {
	var table = []struct {
		location string
		bucket   string
		prefix   string
	}{
		{"", "", ""},
		{"bucket", "bucket", ""},
		{"/bucket", "bucket", ""},
		{"/bucket/prefix/", "bucket", "prefix/"},
		{"/bucket/prefix", "bucket", "prefix/"},
		{"/bucket/and/a/prefix", "bucket", "and/a/prefix/"},
	}

	for _, row := range table {
		t.Log(row.location)
		bucket, prefix := splitBucketPrefix(row.location)
		if bucket != row.bucket {
			t.Error("expected bucket", row.bucket, "received", bucket)
		}
		if prefix != row.prefix {
			t.Error("expected prefix", row.prefix, "received", prefix)
		}
	}
}

func TestParseLocation(t *testing.T) {
	var table = []struct {
		location string
		bucket   string
		typ      int
		endpoint string
		s3bucket string
		s3prefix string
	}{
		{"", "iwate150data", typeMemory, "", "", ""},
		{"mem:", "iwate150data", typeMemory, "", "", ""},
		{"supabase://xyz.supabase.co", "iwate150data", typeSupabase, "https://xyz.supabase.co", "", ""},
		{"supabase://localhost:54321", "iwate150data", typeSupabase, "http://localhost:54321", "", ""},
		{"s3:/assets", "", typeS3, "", "assets", ""},
		{"s3:/assets/staging", "", typeS3, "", "assets", "staging/"},
		{"s3://localhost:9000/assets/staging/", "", typeS3, "", "assets", "staging/"},
		{"s3:", "iwate150data", typeS3, "", "iwate150data", ""},
		{"s3:", "", typeError, "", "", ""},
		{"gopher://xyz", "iwate150data", typeError, "", "", ""},
	}

	for _, row := range table {
		t.Log(row.location)
		result, err := parseLocation(row.location, row.bucket)
		if row.typ == typeError {
			if err == nil {
				t.Errorf("expected error, received %#v", result)
			}
			continue
		}
		if err != nil {
			t.Error("unexpected error", err)
			continue
		}
		switch x := result.(type) {
		case *store.Memory:
			if row.typ != typeMemory {
				t.Errorf("unexpected received %#v", result)
			}
		case *store.Supabase:
			if row.typ != typeSupabase {
				t.Errorf("unexpected received %#v", result)
			}
			if x.Endpoint != row.endpoint {
				t.Error("expected endpoint", row.endpoint, "received", x.Endpoint)
			}
			if x.Bucket != row.bucket {
				t.Error("expected bucket", row.bucket, "received", x.Bucket)
			}
		case *store.S3:
			if row.typ != typeS3 {
				t.Errorf("unexpected received %#v", result)
			}
			if x.Bucket != row.s3bucket {
				t.Error("expected bucket", row.s3bucket, "received", x.Bucket)
			}
			if x.Prefix != row.s3prefix {
				t.Error("expected prefix", row.s3prefix, "received", x.Prefix)
			}
		}
	}
}

func TestParseLocationNeedsKey(t *testing.T) {
	os.Unsetenv("SUPABASE_SERVICE_KEY")
	_, err := parseLocation("supabase://xyz.supabase.co", "iwate150data")
	if err == nil {
		t.Error("expected error with no service key set")
	}
	os.Setenv("SUPABASE_SERVICE_KEY", "test-service-key")
	_, err = parseLocation("supabase://xyz.supabase.co", "iwate150data")
	if err != nil {
		t.Error("unexpected error", err)
	}
}

func init() {
	// the supabase rows need a credential in the environment
	if x := os.Getenv("SUPABASE_SERVICE_KEY"); x == "" {
		os.Setenv("SUPABASE_SERVICE_KEY", "test-service-key")
	}
}
