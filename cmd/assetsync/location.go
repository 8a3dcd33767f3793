package main

import (
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"

	"github.com/iwate150/assetsync/store"
)

// splitBucketPrefix will take a path and separate the bucket name from a
// prefix, if any. The prefix returned is either empty or ends with a
// slash "/".
//
// examples:
// 		"" -> ("", "")
//		"bucket" -> ("bucket", "")
//		"/bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string) (bucket, prefix string) {
	if location == "" {
		return
	}
	location = strings.TrimPrefix(location, "/")
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = v[1]
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// parseLocation creates the appropriate store for "location".
// It understands the schemes "supabase:", "s3:" and "mem:".
// An empty location returns a memory store.
//
// Supabase connections take their credential from the environment
// variable SUPABASE_SERVICE_KEY, and it is an error for it to be unset.
// S3 connections use the usual AWS environment.
func parseLocation(location, bucket string) (store.Store, error) {
	if location == "" {
		return store.NewMemory(), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing location %s", location)
	}
	switch u.Scheme {
	case "mem":
		return store.NewMemory(), nil
	case "supabase":
		key := os.Getenv("SUPABASE_SERVICE_KEY")
		if key == "" {
			return nil, errors.New("SUPABASE_SERVICE_KEY missing")
		}
		scheme := "https"
		// local development stack
		if strings.Contains(u.Host, "localhost") || strings.Contains(u.Host, "127.0.0.1") {
			scheme = "http"
		}
		return store.NewSupabase(scheme+"://"+u.Host, bucket, key), nil
	case "s3":
		conf := &aws.Config{}
		if u.Host != "" {
			conf.Endpoint = aws.String(u.Host)
			conf.Region = aws.String("us-east-1")
			// disable SSL for local development
			if strings.Contains(u.Host, "localhost") {
				conf.DisableSSL = aws.Bool(true)
				conf.S3ForcePathStyle = aws.Bool(true)
			}
		}
		b, prefix := splitBucketPrefix(u.Path)
		if b == "" {
			b = bucket
		}
		if b == "" {
			return nil, errors.Errorf("no bucket name in location %s", location)
		}
		return store.NewS3(b, prefix, session.New(conf)), nil
	}
	return nil, errors.Errorf("unknown storage location %s", location)
}
