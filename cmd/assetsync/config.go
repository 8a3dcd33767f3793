package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/iwate150/assetsync/manifest"
)

// Config is the on-disk configuration. Every field can stay at its
// default for a dry run against the standard repository layout; a live
// run additionally needs StorageLocation plus the service credential
// from the environment.
type Config struct {
	// StorageLocation selects the object store. Supported forms:
	//	supabase://xyz.supabase.co   (credential from SUPABASE_SERVICE_KEY)
	//	s3:/bucket/prefix            (credentials from the AWS environment)
	//	s3:host/bucket/prefix        (S3 compatible endpoint, e.g. Minio)
	//	mem:                         (in-memory, for testing)
	StorageLocation string

	// Bucket is the storage bucket holding the assets.
	Bucket string

	// ManifestFile is where the JSON manifest snapshot is written.
	ManifestFile string

	// Database is the DSN of the application database read by the
	// verifier. postgres://... or mysql://...
	Database string

	// Local asset roots. A root that does not exist is skipped.
	LegacyImages string
	LegacyModels string
	PublicImages string
	PublicModels string

	// SentryDSN enables error capture when set.
	SentryDSN string
}

// defaultConfig matches the directory layout of the web application
// repository.
var defaultConfig = Config{
	Bucket:       "iwate150data",
	ManifestFile: "asset-manifest.json",
	LegacyImages: "legacy/images",
	LegacyModels: "legacy/models",
	PublicImages: "public/images",
	PublicModels: "public/models",
}

// loadConfig reads the TOML configuration on top of the defaults. A
// missing file is only an error when the operator named it explicitly.
func loadConfig(path string, mustExist bool) (Config, error) {
	config := defaultConfig
	_, err := toml.DecodeFile(path, &config)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return defaultConfig, nil
		}
		return config, errors.Wrapf(err, "reading config %s", path)
	}
	return config, nil
}

func (c Config) roots() manifest.Roots {
	return manifest.Roots{
		LegacyImages: c.LegacyImages,
		LegacyModels: c.LegacyModels,
		PublicImages: c.PublicImages,
		PublicModels: c.PublicModels,
	}
}
