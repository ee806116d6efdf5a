package search

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned to the caller of a search that was replaced by a
// newer search in the same session before it finished.
var ErrSuperseded = errors.New("search superseded by a newer search")

// Session orders one user's searches. Starting a search cancels the one still
// in flight, and only the newest search may return results.
type Session struct {
	searcher *Searcher

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc

	refs int // guarded by the owning Sessions registry
}

func NewSession(searcher *Searcher) *Session {
	return &Session{searcher: searcher}
}

// SearchBySimilarImage runs Searcher.SearchBySimilarImage as the session's
// current search.
func (s *Session) SearchBySimilarImage(ctx context.Context, query []byte, opts Options) (*Result, error) {
	return s.run(ctx, func(ctx context.Context) (*Result, error) {
		return s.searcher.SearchBySimilarImage(ctx, query, opts)
	})
}

// SearchByImageLocation runs Searcher.SearchByImageLocation as the session's
// current search.
func (s *Session) SearchByImageLocation(ctx context.Context, location string, opts Options) (*Result, error) {
	return s.run(ctx, func(ctx context.Context) (*Result, error) {
		return s.searcher.SearchByImageLocation(ctx, location, opts)
	})
}

func (s *Session) run(ctx context.Context, fn func(context.Context) (*Result, error)) (*Result, error) {
	sctx, seq, cancel := s.begin(ctx)
	defer s.end(seq, cancel)

	result, err := fn(sctx)
	if err != nil {
		return nil, err
	}
	// a newer search may have started after this one finished scoring
	if !s.isCurrent(seq) {
		return nil, ErrSuperseded
	}
	return result, nil
}

func (s *Session) begin(ctx context.Context) (context.Context, uint64, context.CancelCauseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel(ErrSuperseded)
	}
	s.seq++
	sctx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	return sctx, s.seq, cancel
}

func (s *Session) end(seq uint64, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	if s.seq == seq {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel(nil)
}

func (s *Session) isCurrent(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq == seq
}

// Sessions hands out one Session per client key and forgets it once no
// search is using it.
type Sessions struct {
	searcher *Searcher

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions(searcher *Searcher) *Sessions {
	return &Sessions{searcher: searcher, sessions: make(map[string]*Session)}
}

// Acquire returns the session for key. Every Acquire must be paired with a
// Release.
func (r *Sessions) Acquire(key string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		s = NewSession(r.searcher)
		r.sessions[key] = s
	}
	s.refs++
	return s
}

func (r *Sessions) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(r.sessions, key)
	}
}

// Len reports how many sessions are live.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
