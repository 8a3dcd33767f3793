package store

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	raven "github.com/getsentry/raven-go"
)

// A Supabase store talks to the Supabase Storage REST API. The service
// key is the privileged ("service role") credential; it is required for
// writes and for listing non-public buckets.
// Do not change the fields concurrently with calls using the structure.
type Supabase struct {
	Endpoint string // e.g. "https://xyz.supabase.co"
	Bucket   string
	Key      string

	client *http.Client
}

// NewSupabase creates a store backed by the Supabase Storage API at the
// given endpoint, scoped to one bucket.
func NewSupabase(endpoint, bucket, key string) *Supabase {
	return &Supabase{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		Bucket:   bucket,
		Key:      key,
	}
}

// do performs an http request using our client with a timeout. The
// timeout is arbitrary, and is just there so we don't hang indefinitely
// should the server never close the connection.
func (s *Supabase) do(req *http.Request) (*http.Response, error) {
	if s.Key != "" {
		req.Header.Set("Authorization", "Bearer "+s.Key)
		req.Header.Set("apikey", s.Key)
	}
	if s.client == nil {
		s.client = &http.Client{
			Timeout: 10 * time.Minute, // arbitrary
		}
	}
	return s.client.Do(req)
}

// BucketExists reports whether the configured bucket is present.
func (s *Supabase) BucketExists() (bool, error) {
	req, _ := http.NewRequest("GET", s.Endpoint+"/storage/v1/bucket/"+s.Bucket, nil)
	resp, err := s.do(req)
	if err != nil {
		return false, &Error{Kind: KindTransient, Op: "bucket", Message: err.Error()}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case 200:
		return true, nil
	case 400, 404:
		return false, nil
	}
	return false, s.errorFromResponse("bucket", "", resp)
}

// CreateBucket creates the configured bucket. A fileSizeLimit of 0 means
// no per-object size limit.
func (s *Supabase) CreateBucket(public bool, fileSizeLimit int64) error {
	body := fmt.Sprintf(`{"id":%q,"name":%q,"public":%v`, s.Bucket, s.Bucket, public)
	if fileSizeLimit > 0 {
		body += fmt.Sprintf(`,"file_size_limit":%d`, fileSizeLimit)
	}
	body += "}"
	req, _ := http.NewRequest("POST", s.Endpoint+"/storage/v1/bucket", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Op: "create-bucket", Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode == 200 || resp.StatusCode == 201 {
		return nil
	}
	return s.errorFromResponse("create-bucket", "", resp)
}

// The list endpoint pages its results. 1000 is the largest page the
// service will return in one call.
const listPageSize = 1000

// List returns the entries directly under prefix, in name order. Folder
// placeholders are returned with IsFolder set; use ListAll to flatten
// them.
func (s *Supabase) List(prefix string) ([]Entry, error) {
	var result []Entry
	for offset := 0; ; offset += listPageSize {
		page, err := s.listPage(prefix, listPageSize, offset)
		if err != nil {
			return nil, err
		}
		result = append(result, page...)
		if len(page) < listPageSize {
			return result, nil
		}
	}
}

func (s *Supabase) listPage(prefix string, limit, offset int) ([]Entry, error) {
	body := fmt.Sprintf(`{"prefix":%q,"limit":%d,"offset":%d,"sortBy":{"column":"name","order":"asc"}}`,
		prefix, limit, offset)
	req, _ := http.NewRequest("POST", s.Endpoint+"/storage/v1/object/list/"+s.Bucket,
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: "list", Key: prefix, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, s.errorFromResponse("list", prefix, resp)
	}
	v, err := jason.NewValueFromReader(resp.Body)
	var rows []*jason.Value
	if err == nil {
		rows, err = v.Array()
	}
	if err != nil {
		return nil, &Error{Kind: KindAmbiguous, Op: "list", Key: prefix,
			Message: "response body was not parseable JSON"}
	}
	var entries []Entry
	for _, row := range rows {
		obj, err := row.Object()
		if err != nil {
			continue
		}
		name, err := obj.GetString("name")
		if err != nil || name == "" {
			continue
		}
		// a null metadata field marks a folder placeholder
		_, merr := obj.GetObject("metadata")
		entries = append(entries, Entry{Name: name, IsFolder: merr != nil})
	}
	return entries, nil
}

// Upload stores data under key. With opts.Upsert an existing object is
// overwritten; otherwise the service rejects duplicates.
func (s *Supabase) Upload(key string, data []byte, opts UploadOptions) error {
	req, err := http.NewRequest("POST", s.Endpoint+"/storage/v1/object/"+s.Bucket+"/"+key,
		bytes.NewReader(data))
	if err != nil {
		return &Error{Kind: KindFatal, Op: "upload", Key: key, Message: err.Error()}
	}
	if opts.Upsert {
		req.Header.Set("x-upsert", "true")
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	resp, err := s.do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Op: "upload", Key: key, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode == 200 || resp.StatusCode == 201 {
		// the service replies with a small JSON document naming the
		// stored key. If that document cannot be parsed we do not know
		// whether the write landed; the caller resolves it with an
		// existence probe.
		if _, err := jason.NewObjectFromReader(resp.Body); err != nil {
			return &Error{Kind: KindAmbiguous, Op: "upload", Key: key,
				Message: "response body was not parseable JSON"}
		}
		return nil
	}
	return s.errorFromResponse("upload", key, resp)
}

// SignedURL returns a time-limited download URL for key.
func (s *Supabase) SignedURL(key string, expires time.Duration) (string, error) {
	body := fmt.Sprintf(`{"expiresIn":%d}`, int64(expires.Seconds()))
	req, _ := http.NewRequest("POST", s.Endpoint+"/storage/v1/object/sign/"+s.Bucket+"/"+key,
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.do(req)
	if err != nil {
		return "", &Error{Kind: KindTransient, Op: "sign", Key: key, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", s.errorFromResponse("sign", key, resp)
	}
	v, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindAmbiguous, Op: "sign", Key: key,
			Message: "response body was not parseable JSON"}
	}
	signed, err := v.GetString("signedURL")
	if err != nil || signed == "" {
		return "", &Error{Kind: KindFatal, Op: "sign", Key: key,
			Message: "no signedURL in response"}
	}
	if strings.HasPrefix(signed, "http://") || strings.HasPrefix(signed, "https://") {
		return signed, nil
	}
	return s.Endpoint + "/storage/v1" + signed, nil
}

// errorFromResponse converts a non-success reply into a tagged *Error,
// pulling the service's message out of the body when there is one.
func (s *Supabase) errorFromResponse(op, key string, resp *http.Response) error {
	body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(body))
	if v, err := jason.NewObjectFromBytes(body); err == nil {
		if m, err := v.GetString("message"); err == nil && m != "" {
			message = m
		} else if m, err := v.GetString("error"); err == nil && m != "" {
			message = m
		}
	}
	if message == "" {
		message = resp.Status
	}
	kind := KindFatal
	switch {
	case resp.StatusCode >= 500:
		kind = KindTransient
	case mimePattern.MatchString(message):
		kind = KindContentType
	}
	serr := &Error{Kind: kind, Op: op, Key: key,
		Message: fmt.Sprintf("%d %s", resp.StatusCode, message)}
	if kind == KindFatal {
		log.Println("Supabase", op, key, serr)
		raven.CaptureError(serr, map[string]string{"Bucket": s.Bucket, "Op": op, "Key": key})
	}
	return serr
}
