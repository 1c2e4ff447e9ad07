// Package tracker implements the PDF tracker (§4.1): it decides whether a
// file needs processing, records outcomes, and detects silent
// modifications. The ledger is a JSON-lines file guarded by an flock
// advisory lock, written via temp-file-then-rename for atomicity; it is the
// only store of ProcessedFile records, with no relational mirror. The
// tracker exclusively owns ProcessedFile state (§3.2).
package tracker

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"thoth/internal/config"
	"thoth/internal/thoth/errs"
)

// fingerprintBytes is the prefix length hashed for the cheap (size, sha256)
// fingerprint check — avoids reading multi-hundred-MB PDFs in full on every
// is_processed call.
const fingerprintBytes = 1 << 20 // first 1MiB

// Entry is a ProcessedFile record (§3.1), keyed by AbsolutePath.
type Entry struct {
	AbsolutePath string    `json:"absolute_path"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	ProcessedAt  time.Time `json:"processed_at"`
	NotePath     string    `json:"note_path,omitempty"`
}

// Tracker owns the ledger file and its lock.
type Tracker struct {
	path string
	lock *flock.Flock

	mu      sync.RWMutex
	entries map[string]Entry
}

// New loads (or starts) the ledger at cfg.LedgerPath. A malformed ledger is
// quarantined (renamed with a .corrupt.<ts> suffix) and a fresh one is
// started, per §4.1's failure semantics — loading never fails the caller.
func New(cfg config.TrackerConfig) (*Tracker, error) {
	path := cfg.LedgerPath
	if path == "" {
		return nil, errs.New(errs.ConfigInvalid, "tracker.New", fmt.Errorf("ledger path is empty"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	t := &Tracker{
		path:    path,
		lock:    flock.New(path + ".lock"),
		entries: make(map[string]Entry),
	}
	if err := t.load(); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
		_ = os.Rename(path, quarantine)
		t.entries = make(map[string]Entry)
	}
	return t, nil
}

func (t *Tracker) load() error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("malformed ledger line: %w", err)
		}
		t.entries[e.AbsolutePath] = e
	}
	return sc.Err()
}

// IsProcessed reports whether path is registered and its current
// fingerprint still matches the recorded one. If the file is missing it
// returns (true, true) — "registered-but-gone", treated as processed by
// the watcher but requeueable by a rebuild command via the gone flag.
func (t *Tracker) IsProcessed(path string) (processed bool, gone bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, false, errs.Wrap(errs.InputInvalid, "tracker.is_processed", err)
	}
	t.mu.RLock()
	e, ok := t.entries[abs]
	t.mu.RUnlock()
	if !ok {
		return false, false, nil
	}

	fi, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return true, true, nil
		}
		return false, false, statErr
	}
	if fi.Size() != e.Size {
		return false, false, nil
	}
	sum, err := fingerprint(abs)
	if err != nil {
		return false, false, err
	}
	return sum == e.SHA256, false, nil
}

// VerifyFileUnchanged is a cheap re-check used before reprocessing.
func (t *Tracker) VerifyFileUnchanged(path string) (bool, error) {
	processed, gone, err := t.IsProcessed(path)
	if err != nil || gone {
		return false, err
	}
	return processed, nil
}

// MarkProcessed atomically appends/updates a ledger entry for path: write
// the full ledger to a temp path and rename, serialized by the flock so
// concurrent writers do not interleave (§4.1, §5).
func (t *Tracker) MarkProcessed(path, notePath string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrap(errs.InputInvalid, "tracker.mark_processed", err)
	}
	sum, err := fingerprint(abs)
	if err != nil {
		return err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return err
	}

	if err := t.lock.Lock(); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer t.lock.Unlock()

	t.mu.Lock()
	t.entries[abs] = Entry{
		AbsolutePath: abs,
		SHA256:       sum,
		Size:         fi.Size(),
		ProcessedAt:  time.Now(),
		NotePath:     notePath,
	}
	snapshot := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		snapshot = append(snapshot, e)
	}
	t.mu.Unlock()

	return writeLedger(t.path, snapshot)
}

func writeLedger(path string, entries []Entry) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return err
		}
		w.Write(b)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.CopyN(h, f, fingerprintBytes); err != nil && err != io.EOF {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
