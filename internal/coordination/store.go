package coordination

import (
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Store owns the on-disk block file and serializes concurrent writers
// with an flock, matching the tracker ledger's lock-then-read-modify-write
// pattern (internal/tracker/ledger.go).
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex // in-process fast path; flock covers cross-process
	mirror Mirror
}

// Mirror receives a copy of every post/mark_complete for external
// subscribers (§4.7's Kafka enrichment); nil disables mirroring.
type Mirror interface {
	Publish(receiver string, m Message)
}

func NewStore(path string, mirror Mirror) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(noMessagesPlaceholder+"\n"), 0o644); err != nil {
			return nil, err
		}
	}
	return &Store{path: path, lock: flock.New(path + ".lock"), mirror: mirror}, nil
}

func (s *Store) withLock(fn func(block string) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	next, err := fn(string(b))
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(next), 0o644)
}

func (s *Store) Post(sender, receiver, task string, priority Priority, metadata string) error {
	m := Message{Timestamp: time.Now(), Sender: sender, Receiver: receiver, Task: task, Priority: priority, Status: StatusPending, Metadata: metadata}
	err := s.withLock(func(block string) (string, error) {
		return Post(block, m), nil
	})
	if err == nil && s.mirror != nil {
		s.mirror.Publish(receiver, m)
	}
	return err
}

func (s *Store) Read(receiver string, status Status) ([]Message, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return Read(string(b), receiver, status), nil
}

func (s *Store) MarkComplete(sender, receiver string, ts time.Time) error {
	err := s.withLock(func(block string) (string, error) {
		return MarkComplete(block, sender, receiver, ts), nil
	})
	if err == nil && s.mirror != nil {
		s.mirror.Publish(receiver, Message{Timestamp: ts, Sender: sender, Receiver: receiver, Status: StatusComplete})
	}
	return err
}

func (s *Store) Compact(keepRecent int) error {
	return s.withLock(func(block string) (string, error) {
		return Compact(block, keepRecent), nil
	})
}
