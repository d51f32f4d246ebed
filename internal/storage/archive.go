// Package storage persists saved recordings to flat files: raw audio under a
// per-user directory, one shared append-only master CSV, and a per-user JSON
// snapshot. The flat files are the authoritative dataset; the SQLite index
// in internal/database only mirrors them for querying.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// timestampLayout is the compact UTC form used in audio file names.
const timestampLayout = "20060102T150405Z"

// masterHeader is the master CSV column set. Written exactly once, when the
// file is first created. Severity and origin stay empty in the standard
// variant.
var masterHeader = []string{
	"user_id", "timestamp", "consent", "age_range", "severity",
	"origin", "file_name", "prompt", "prompt_category",
}

// Entry is one saved recording: the audio file name plus the prompt and the
// demographic snapshot valid at save time. Immutable once appended.
type Entry struct {
	UserID         int64  `json:"user_id"`
	Timestamp      string `json:"timestamp"` // RFC3339 UTC
	Consent        bool   `json:"consent"`
	AgeRange       string `json:"age_range"`
	Severity       string `json:"severity,omitempty"`
	Origin         string `json:"origin,omitempty"`
	FileName       string `json:"file_name"`
	Prompt         string `json:"prompt"`
	PromptCategory string `json:"prompt_category"`
}

// UserSnapshot is the full per-user document written after every save. It is
// overwritten wholesale, so repeated writes are idempotent.
type UserSnapshot struct {
	UserID       int64             `json:"user_id"`
	Consent      bool              `json:"consent"`
	Variant      string            `json:"variant"`
	Demographics map[string]string `json:"demographics"`
	Recordings   []Entry           `json:"recordings"`
}

// Archive owns the audio/ and metadata/ trees under the data directory.
type Archive struct {
	root string
	tag  string // short variant tag embedded in audio file names
}

// NewArchive creates the archive root directories.
func NewArchive(dataDir, variantTag string) (*Archive, error) {
	a := &Archive{root: dataDir, tag: variantTag}
	for _, dir := range []string{a.audioDir(), a.metadataDir()} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return a, nil
}

func (a *Archive) audioDir() string    { return filepath.Join(a.root, "audio") }
func (a *Archive) metadataDir() string { return filepath.Join(a.root, "metadata") }

// MasterPath returns the path of the shared append-only CSV.
func (a *Archive) MasterPath() string {
	return filepath.Join(a.metadataDir(), "master.csv")
}

// WriteAudio stores received audio bytes under the user's directory with a
// name deterministic in user ID, prompt index and submission time:
// {user}_{tag}_{index+1}_{timestamp}.ogg. The per-user directory is created
// on first use.
func (a *Archive) WriteAudio(userID int64, data []byte, index int, ts time.Time) (path, name string, err error) {
	dir := filepath.Join(a.audioDir(), strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", "", fmt.Errorf("creating user audio dir: %w", err)
	}

	name = fmt.Sprintf("%d_%s_%d_%s.ogg", userID, a.tag, index+1, ts.UTC().Format(timestampLayout))
	path = filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", "", fmt.Errorf("writing audio file: %w", err)
	}
	return path, name, nil
}

// AppendMaster appends one row to the shared master CSV, writing the header
// first if the file does not exist yet.
func (a *Archive) AppendMaster(e Entry) error {
	_, statErr := os.Stat(a.MasterPath())
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(a.MasterPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("opening master csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(masterHeader); err != nil {
			return fmt.Errorf("writing master csv header: %w", err)
		}
	}
	row := []string{
		strconv.FormatInt(e.UserID, 10),
		e.Timestamp,
		strconv.FormatBool(e.Consent),
		e.AgeRange,
		e.Severity,
		e.Origin,
		e.FileName,
		e.Prompt,
		e.PromptCategory,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing master csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing master csv: %w", err)
	}
	return nil
}

// WriteUserSnapshot overwrites the user's metadata document with the full
// current state. Safe to call repeatedly.
func (a *Archive) WriteUserSnapshot(snap UserSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling user snapshot: %w", err)
	}
	path := filepath.Join(a.metadataDir(), fmt.Sprintf("%d.json", snap.UserID))
	if err := os.WriteFile(path, append(data, '\n'), 0640); err != nil {
		return fmt.Errorf("writing user snapshot: %w", err)
	}
	return nil
}

// DiscardPending deletes a buffered, unsaved audio file. Deleting a file
// that is already gone is not an error.
func (a *Archive) DiscardPending(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pending audio: %w", err)
	}
	return nil
}
