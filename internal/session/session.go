// Package session ties a normalized book to its chunk cache, its layout
// engine and the saved reading position.
package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/book"
	"github.com/metcalfc/leaf/internal/chunk"
	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/layout"
	"github.com/metcalfc/leaf/internal/measure"
	"github.com/metcalfc/leaf/internal/state"
)

// Session is one open book.
type Session struct {
	Book *book.Book
	Hash string

	cache  *chunk.Cache
	engine *layout.Engine
	store  *state.Store
	log    zerolog.Logger
}

type options struct {
	store    *state.Store
	fresh    bool
	log      zerolog.Logger
	onCommit func(layout.Result)
}

type Option func(*options)

// WithStore restores and saves the reading position through store.
func WithStore(store *state.Store) Option {
	return func(o *options) { o.store = store }
}

// Fresh ignores any saved position.
func Fresh(fresh bool) Option {
	return func(o *options) { o.fresh = fresh }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithOnCommit is called after every layout pass, including debounced ones.
func WithOnCommit(fn func(layout.Result)) Option {
	return func(o *options) { o.onCommit = fn }
}

// Open normalizes the file at path, partitions it into chunks, paginates it
// for vp and moves to the saved position.
func Open(ctx context.Context, path string, cfg config.Config, surface measure.Surface, vp layout.Viewport, opts ...Option) (*Session, error) {
	o := options{log: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	hash, err := state.ComputeHash(path)
	if err != nil {
		return nil, err
	}
	b, err := book.Open(path)
	if err != nil {
		return nil, err
	}
	b.ID = hash

	s := &Session{
		Book:  b,
		Hash:  hash,
		store: o.store,
		log:   o.log.With().Str("book", hash).Logger(),
	}
	s.cache = chunk.New(cfg.Cache, chunk.WithLogger(o.log))
	s.cache.Initialize(hash, b)
	s.cache.Start()

	engineOpts := []layout.Option{layout.WithLogger(o.log)}
	if o.onCommit != nil {
		engineOpts = append(engineOpts, layout.WithOnCommit(o.onCommit))
	}
	s.engine = layout.New(surface, cfg.Layout, engineOpts...)
	if err := s.engine.Calculate(ctx, b, cfg.Reading, vp); err != nil {
		s.engine.Close()
		s.cache.Close()
		return nil, fmt.Errorf("paginate %s: %w", path, err)
	}

	if s.store != nil && !o.fresh {
		if pos, ok := s.store.Position(hash); ok {
			s.engine.GoToChapter(pos.Chapter, pos.PageInChapter)
		}
	}
	s.log.Info().
		Str("title", b.Title).
		Int("chapters", len(b.Chapters)).
		Int("chunks", s.cache.GetTotalChunks(hash)).
		Int("pages", s.engine.TotalPages()).
		Msg("opened book")
	return s, nil
}

func (s *Session) Engine() *layout.Engine { return s.engine }

func (s *Session) Cache() *chunk.Cache { return s.cache }

// Save records the current chapter and page within it.
func (s *Session) Save() error {
	if s.store == nil {
		return nil
	}
	info, ok := s.engine.CurrentPageInfo()
	if !ok {
		return nil
	}
	return s.store.SetPosition(s.Hash, state.Position{
		Chapter:       info.ChapterIndex,
		PageInChapter: info.PageInChapter,
	})
}

// Restart moves to the first page and forgets the saved position.
func (s *Session) Restart() error {
	s.engine.GoToPage(1)
	if s.store == nil {
		return nil
	}
	return s.store.Clear(s.Hash)
}

// Close saves the position and releases the engine and the cache.
func (s *Session) Close() error {
	err := s.Save()
	s.engine.Close()
	s.cache.ClearBookCache(s.Hash)
	s.cache.Close()
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}
