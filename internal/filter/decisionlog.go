package filter

import (
	"context"
	"encoding/json"
	"os"
	"sync"
)

// FileDecisionLog appends Decision records as JSON lines, mirroring the
// tracker ledger's append/flush idiom (internal/tracker/ledger.go) but
// without the rename-on-write atomicity that ledger needs, since decisions
// are append-only and never rewritten in place.
type FileDecisionLog struct {
	mu   sync.Mutex
	path string
}

func NewFileDecisionLog(path string) *FileDecisionLog {
	return &FileDecisionLog{path: path}
}

func (l *FileDecisionLog) Append(_ context.Context, d Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}
