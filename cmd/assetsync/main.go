package main

// assetsync moves the web application's locally stored media assets
// into the object store and checks that every asset path the
// application references resolves to a stored object.
//
// usage:
//	assetsync [flags] <command>

import (
	"flag"
	"fmt"
	"os"

	raven "github.com/getsentry/raven-go"

	"github.com/iwate150/assetsync/catalog"
	"github.com/iwate150/assetsync/manifest"
	"github.com/iwate150/assetsync/migrate"
	"github.com/iwate150/assetsync/store"
	"github.com/iwate150/assetsync/verify"
)

var (
	configFile = flag.String("config", "assetsync.toml", "path to configuration file")
	doRun      = flag.Bool("run", false, "perform the uploads (migrate is a dry run without this)")

	usage = `
assetsync [flags] <command>

Possible commands:

    migrate     build the asset manifest, write its JSON snapshot, and
                upload every object missing from the bucket. Without
                -run nothing is uploaded and the planned work is
                printed instead.

    verify      check every asset path in the database tables and the
                character catalog against the bucket contents. Exits 1
                if anything is missing.

`
)

func main() {
	os.Exit(realmain())
}

func realmain() int {
	flag.Parse()

	// a missing config file is only fatal if one was named explicitly
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	config, err := loadConfig(*configFile, explicit)
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	if config.SentryDSN != "" {
		raven.SetDSN(config.SentryDSN)
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println(usage)
		return 1
	}
	switch args[0] {
	case "migrate":
		return doMigrate(config, *doRun)
	case "verify":
		return doVerify(config)
	}
	fmt.Println("Error: unknown command", args[0])
	fmt.Println(usage)
	return 1
}

func doMigrate(config Config, live bool) int {
	items, err := manifest.Build(config.roots())
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	// the snapshot is written on every run, dry or live
	err = manifest.WriteSnapshot(config.ManifestFile, config.Bucket, items)
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}
	fmt.Printf("Wrote manifest of %d items to %s\n", len(items), config.ManifestFile)

	var s store.Store
	if live {
		if config.StorageLocation == "" {
			fmt.Println("Error: no StorageLocation configured; refusing to run live")
			return 1
		}
		s, err = parseLocation(config.StorageLocation, config.Bucket)
		if err != nil {
			fmt.Println("Error:", err)
			return 1
		}
	}

	m := &migrate.Migrator{Store: s}
	summary, err := m.Run(items, migrate.Options{DryRun: !live})
	if err != nil {
		fmt.Println("Error:", err)
		raven.CaptureErrorAndWait(err, nil)
		return 1
	}
	if !live {
		fmt.Println("Dry run finished. Rerun with -run to upload.")
		return 0
	}
	fmt.Printf("Migration finished: %d uploaded, %d skipped\n",
		summary.Uploaded, summary.Skipped)
	return 0
}

func doVerify(config Config) int {
	if config.StorageLocation == "" {
		fmt.Println("Error: no StorageLocation configured; nothing to verify against")
		return 1
	}
	s, err := parseLocation(config.StorageLocation, config.Bucket)
	if err != nil {
		fmt.Println("Error:", err)
		return 1
	}

	var sources []verify.Source
	if config.Database != "" {
		db, err := verify.OpenDatabase(config.Database)
		if err != nil {
			fmt.Println("Error:", err)
			return 1
		}
		defer db.Close()
		sources = verify.SQLSources(db, verify.DefaultTables)
	} else {
		fmt.Println("No database configured. Verifying the character catalog only.")
	}
	sources = append(sources, &verify.CatalogSource{Characters: catalog.Characters})

	v := &verify.Verifier{Store: s, Sources: sources}
	missing, err := v.Run()
	if err != nil {
		fmt.Println("Error:", err)
		raven.CaptureErrorAndWait(err, nil)
		return 1
	}
	verify.Report(os.Stdout, missing)
	if len(missing) > 0 {
		return 1
	}
	return 0
}
