package manifest

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
)

// A Snapshot is the JSON audit artifact written on every run, dry runs
// included. It records what the builder found; it is not durable state
// and is never read back by the migration itself.
type Snapshot struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Bucket      string      `json:"bucket"`
	Count       int         `json:"count"`
	Items       []AssetItem `json:"items"`
}

// WriteSnapshot writes the manifest snapshot to path. The file goes to a
// temporary name first and is renamed into place, so a crash never
// leaves a partial manifest behind.
func WriteSnapshot(path, bucket string, items []AssetItem) error {
	snap := Snapshot{
		GeneratedAt: time.Now().UTC(),
		Bucket:      bucket,
		Count:       len(items),
		Items:       items,
	}
	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	tmp := path + ".tmp"
	if err := ioutil.WriteFile(tmp, buf, 0644); err != nil {
		return errors.Wrap(err, "writing manifest")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "writing manifest")
	}
	return nil
}
