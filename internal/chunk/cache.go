// Package chunk implements a bounded cache of fixed-size slices of book text.
// A book is partitioned once; chunk contents are materialized on demand and
// evicted when they are both stale and far from the reading position.
package chunk

import (
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metcalfc/leaf/internal/book"
	"github.com/metcalfc/leaf/internal/config"
)

// Chunk is a materialized slice of one chapter. Offsets are global rune
// offsets; EndOffset is inclusive.
type Chunk struct {
	ID           string
	Content      string
	StartOffset  int
	EndOffset    int
	ChapterIndex int
}

// MemoryStats describes the resident state of one book.
type MemoryStats struct {
	Resident int
	Total    int
	Bytes    int
}

// span locates a chunk inside its chapter.
type span struct {
	id           string
	chapterIndex int
	byteStart    int
	byteEnd      int
	startOffset  int
	endOffset    int
}

type entry struct {
	chunk      Chunk
	lastAccess time.Time
}

type bookTable struct {
	book     *book.Book
	spans    []span
	resident map[int]*entry
}

// Cache holds partition tables and resident chunks for any number of books.
type Cache struct {
	cfg config.Cache
	log zerolog.Logger
	now func() time.Time

	mu    sync.Mutex
	books map[string]*bookTable

	warm   sync.WaitGroup
	stopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for cache events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache. Call Start to run the background sweep.
func New(cfg config.Cache, opts ...Option) *Cache {
	d := config.DefaultCache()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = d.ChunkSize
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = d.MaxChunks
	}
	if cfg.PreloadDistance < 0 {
		cfg.PreloadDistance = 0
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = d.SweepInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = d.StaleAfter
	}
	c := &Cache{
		cfg:   cfg,
		log:   log.Logger,
		now:   time.Now,
		books: make(map[string]*bookTable),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "chunk").Logger()
	return c
}

// Initialize builds the partition table for a book, replacing any previous
// table and resident chunks for bookID.
func (c *Cache) Initialize(bookID string, b *book.Book) {
	t := &bookTable{book: b, resident: make(map[int]*entry)}
	offset := 0
	if b != nil {
		for ci, ch := range b.Chapters {
			n := 0
			byteStart := 0
			chunkStart := offset
			j := 0
			for pos := range ch.Content {
				if n == c.cfg.ChunkSize {
					t.spans = append(t.spans, span{
						id:           chunkID(ch, ci, j),
						chapterIndex: ci,
						byteStart:    byteStart,
						byteEnd:      pos,
						startOffset:  chunkStart,
						endOffset:    chunkStart + n - 1,
					})
					j++
					byteStart = pos
					chunkStart += n
					n = 0
				}
				n++
			}
			if n > 0 {
				t.spans = append(t.spans, span{
					id:           chunkID(ch, ci, j),
					chapterIndex: ci,
					byteStart:    byteStart,
					byteEnd:      len(ch.Content),
					startOffset:  chunkStart,
					endOffset:    chunkStart + n - 1,
				})
			}
			offset += utf8.RuneCountInString(ch.Content)
		}
	}

	c.mu.Lock()
	c.books[bookID] = t
	c.mu.Unlock()
	c.log.Debug().Str("book", bookID).Int("chunks", len(t.spans)).Msg("partitioned book")
}

func chunkID(ch book.Chapter, chapterIndex, n int) string {
	id := ch.ID
	if id == "" {
		id = fmt.Sprintf("chapter-%d", chapterIndex)
	}
	return fmt.Sprintf("%s-%d", id, n)
}

// GetChunk returns the chunk at index, materializing it on a miss. It returns
// false for an unknown book or an out-of-range index.
func (c *Cache) GetChunk(bookID string, index int) (*Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(bookID, index)
}

func (c *Cache) getLocked(bookID string, index int) (*Chunk, bool) {
	t, ok := c.books[bookID]
	if !ok || index < 0 || index >= len(t.spans) {
		return nil, false
	}
	now := c.now()
	if e, ok := t.resident[index]; ok {
		e.lastAccess = now
		ch := e.chunk
		return &ch, true
	}

	s := t.spans[index]
	content := t.book.Chapters[s.chapterIndex].Content[s.byteStart:s.byteEnd]
	e := &entry{
		chunk: Chunk{
			ID:           s.id,
			Content:      content,
			StartOffset:  s.startOffset,
			EndOffset:    s.endOffset,
			ChapterIndex: s.chapterIndex,
		},
		lastAccess: now,
	}
	t.resident[index] = e
	c.evictLocked(bookID, t, index)
	ch := e.chunk
	return &ch, true
}

// GetChunksInRange returns the resident or materialized chunks in the clamped
// range [start, end] and warms PreloadDistance chunks on each side in the
// background.
func (c *Cache) GetChunksInRange(bookID string, start, end int) []Chunk {
	c.mu.Lock()
	t, ok := c.books[bookID]
	if !ok || len(t.spans) == 0 {
		c.mu.Unlock()
		return nil
	}
	last := len(t.spans) - 1
	start = max(0, start)
	end = min(last, end)

	var out []Chunk
	for i := start; i <= end; i++ {
		if ch, ok := c.getLocked(bookID, i); ok {
			out = append(out, *ch)
		}
	}
	c.mu.Unlock()

	var warm []int
	for d := 1; d <= c.cfg.PreloadDistance; d++ {
		if i := start - d; i >= 0 {
			warm = append(warm, i)
		}
		if i := end + d; i <= last {
			warm = append(warm, i)
		}
	}
	if len(warm) > 0 {
		c.warm.Add(1)
		go func() {
			defer c.warm.Done()
			for _, i := range warm {
				c.GetChunk(bookID, i)
			}
		}()
	}
	return out
}

// FindChunkByPosition returns the index of the chunk containing the global
// rune offset, or 0 when none does.
func (c *Cache) FindChunkByPosition(bookID string, offset int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.books[bookID]
	if !ok {
		return 0
	}
	for i, s := range t.spans {
		if offset >= s.startOffset && offset <= s.endOffset {
			return i
		}
	}
	return 0
}

// GetTotalChunks returns the partition size for a book.
func (c *Cache) GetTotalChunks(bookID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.books[bookID]; ok {
		return len(t.spans)
	}
	return 0
}

// GetMemoryStats reports resident chunks and their approximate size.
func (c *Cache) GetMemoryStats(bookID string) MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.books[bookID]
	if !ok {
		return MemoryStats{}
	}
	stats := MemoryStats{Resident: len(t.resident), Total: len(t.spans)}
	for _, e := range t.resident {
		stats.Bytes += len(e.chunk.Content)
	}
	return stats
}

// ClearBookCache drops the partition table and resident chunks of a book.
func (c *Cache) ClearBookCache(bookID string) {
	c.mu.Lock()
	delete(c.books, bookID)
	c.mu.Unlock()
}

// evictLocked enforces MaxChunks. Chunks far from current go first, then the
// least recently used.
func (c *Cache) evictLocked(bookID string, t *bookTable, current int) {
	if len(t.resident) <= c.cfg.MaxChunks {
		return
	}
	far := 2 * c.cfg.PreloadDistance
	evicted := 0
	for i := range t.resident {
		if abs(i-current) > far {
			delete(t.resident, i)
			evicted++
		}
	}

	if len(t.resident) > c.cfg.MaxChunks {
		idx := make([]int, 0, len(t.resident))
		for i := range t.resident {
			idx = append(idx, i)
		}
		sort.Slice(idx, func(a, b int) bool {
			return t.resident[idx[a]].lastAccess.Before(t.resident[idx[b]].lastAccess)
		})
		for _, i := range idx {
			if len(t.resident) <= c.cfg.MaxChunks {
				break
			}
			if i == current {
				continue
			}
			delete(t.resident, i)
			evicted++
		}
	}
	c.log.Debug().Str("book", bookID).Int("current", current).Int("evicted", evicted).Msg("evicted chunks")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
