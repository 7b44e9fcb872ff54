// Package jsonfile implements the repository interfaces on a single JSON
// document on disk.
//
// The whole dataset lives in memory and is rewritten to disk after every
// mutation. One goroutine owns the document; every repository call is sent
// to it as an op and runs to completion before the next one starts. That
// gives each call the isolation the sqlite store gets from its
// transactions.
//
// DURABILITY:
// A write goes to a temp file in the same directory which is then renamed
// over the document, so a crash leaves either the old or the new file. If
// the write fails the in-memory document is rolled back to the last state
// that reached disk, and the caller gets the error.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sakif/chronicle/internal/model"
	"github.com/sakif/chronicle/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("jsonfile: store closed")

// document is the on-disk shape: users by id, entries partitioned by user
// id, sessions by token hash.
type document struct {
	Users    map[string]*model.User    `json:"users"`
	Entries  map[string][]*model.Entry `json:"entries"`
	Sessions map[string]*model.Session `json:"sessions"`
}

func emptyDocument() *document {
	return &document{
		Users:    map[string]*model.User{},
		Entries:  map[string][]*model.Entry{},
		Sessions: map[string]*model.Session{},
	}
}

// op is one unit of work for the owning goroutine. fn must not mutate the
// document when it returns an error.
type op struct {
	fn    func(doc *document) error
	write bool
	reply chan error
}

// Store is a JSON-document backed repository.Store.
type Store struct {
	path string
	now  func() time.Time

	// Owned by the run goroutine.
	doc   *document
	saved []byte

	ops       chan op
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps and streaks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the document at path and starts the store.
//
// A missing or empty file is an empty store; the file is created on the
// first write. A file that exists but is not a valid document is an error:
// silently starting empty would overwrite it on the next write.
func Open(path string, opts ...Option) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("jsonfile: reading %s: %w", path, err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("jsonfile: decoding %s: %w", path, err)
	}
	saved, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:    path,
		now:     time.Now,
		doc:     doc,
		saved:   saved,
		ops:     make(chan op),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.run()
	return s, nil
}

// Close stops the owning goroutine. The document is already on disk.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.stopped
	})
	return nil
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case o := <-s.ops:
			o.reply <- s.apply(o)
		case <-s.quit:
			return
		}
	}
}

func (s *Store) apply(o op) error {
	if err := o.fn(s.doc); err != nil {
		return err
	}
	if !o.write {
		return nil
	}

	raw, err := encodeDocument(s.doc)
	if err == nil {
		err = writeAtomic(s.path, raw)
	}
	if err != nil {
		// Roll back to what is on disk. saved always decodes: it was
		// produced by encodeDocument.
		if doc, derr := decodeDocument(s.saved); derr == nil {
			s.doc = doc
		}
		return err
	}
	s.saved = raw
	return nil
}

// view runs a read-only fn on the owning goroutine.
func (s *Store) view(ctx context.Context, fn func(doc *document) error) error {
	return s.submit(ctx, op{fn: fn})
}

// update runs fn on the owning goroutine and persists the result.
func (s *Store) update(ctx context.Context, fn func(doc *document) error) error {
	return s.submit(ctx, op{fn: fn, write: true})
}

func (s *Store) submit(ctx context.Context, o op) error {
	o.reply = make(chan error, 1)
	select {
	case s.ops <- o:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the op runs to completion; report its real outcome.
	return <-o.reply
}

func decodeDocument(raw []byte) (*document, error) {
	doc := emptyDocument()
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, err
	}
	if doc.Users == nil {
		doc.Users = map[string]*model.User{}
	}
	if doc.Entries == nil {
		doc.Entries = map[string][]*model.Entry{}
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]*model.Session{}
	}

	// Partition keys are not repeated inside the records.
	for userID, entries := range doc.Entries {
		for _, e := range entries {
			e.UserID = userID
			if e.Themes == nil {
				e.Themes = []string{}
			}
		}
	}
	for hash, sess := range doc.Sessions {
		sess.TokenHash = hash
	}
	return doc, nil
}

func encodeDocument(doc *document) ([]byte, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("jsonfile: encoding document: %w", err)
	}
	return raw, nil
}

// writeAtomic replaces path with data via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".chronicle-*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonfile: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("jsonfile: replacing %s: %w", path, err)
	}

	// Flush the directory entry so the rename survives a power loss.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
