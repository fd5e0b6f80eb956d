package txn

import (
	"context"
	"sync"
)

// fakeStore hands out recording sessions so tests can check which
// session every call observed.
type fakeStore struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (f *fakeStore) StartSession(context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := &fakeSession{id: len(f.sessions)}
	f.sessions = append(f.sessions, s)
	return s, nil
}

type fakeSession struct {
	id int

	mu      sync.Mutex
	started int
	commits int
	aborts  int
	ended   bool
	writes  []string

	// commitErrs are popped one by one before Commit may succeed
	commitErrs []error
}

func (s *fakeSession) StartTransaction(Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return nil
}

func (s *fakeSession) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.commitErrs) > 0 {
		err := s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		return err
	}

	s.commits++
	return nil
}

func (s *fakeSession) Abort(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts++
	return nil
}

func (s *fakeSession) End(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

func (s *fakeSession) WithTransaction(ctx context.Context, body Body) error {
	if err := s.StartTransaction(Options{}); err != nil {
		return err
	}
	if err := body(s.Context(ctx)); err != nil {
		_ = s.Abort(ctx)
		return err
	}
	return s.Commit(ctx)
}

func (s *fakeSession) Context(ctx context.Context) context.Context {
	return ctx
}

func (s *fakeSession) write(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, doc)
}

// record simulates a repository call site: it writes doc through
// whatever session the flow currently observes.
func record(reg *Registry, ctx context.Context, doc string) *fakeSession {
	s, ok := reg.Current(ctx)
	if !ok {
		return nil
	}

	fs := s.(*fakeSession)
	fs.write(doc)
	return fs
}

// conflictErr mimics the store's label-classified transient errors.
type conflictErr struct {
	label string
}

func (e conflictErr) Error() string {
	return "write conflict"
}

func (e conflictErr) HasErrorLabel(label string) bool {
	return e.label == label
}

func transientErr() error {
	return conflictErr{label: TransientErrorLabel}
}
