package chunk

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/metcalfc/leaf/internal/book"
	"github.com/metcalfc/leaf/internal/config"
)

// fakeClock advances one second per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func twoChapterBook() *book.Book {
	return &book.Book{Chapters: []book.Chapter{
		{ID: "one", Content: strings.Repeat("a", 25)},
		{ID: "two", Content: strings.Repeat("b", 15)},
	}}
}

func newTestCache(cfg config.Cache) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	return New(cfg, WithClock(clock.Now)), clock
}

func TestInitializePartitions(t *testing.T) {
	c, _ := newTestCache(config.Cache{ChunkSize: 10, PreloadDistance: 0, MaxChunks: 10})
	c.Initialize("b", twoChapterBook())

	// 10, 10, 5 and 10, 5: chunks never span chapters.
	if got := c.GetTotalChunks("b"); got != 5 {
		t.Fatalf("GetTotalChunks = %d, want 5", got)
	}
	want := []struct {
		id         string
		start, end int
		chapter    int
		content    string
	}{
		{"one-0", 0, 9, 0, strings.Repeat("a", 10)},
		{"one-1", 10, 19, 0, strings.Repeat("a", 10)},
		{"one-2", 20, 24, 0, strings.Repeat("a", 5)},
		{"two-0", 25, 34, 1, strings.Repeat("b", 10)},
		{"two-1", 35, 39, 1, strings.Repeat("b", 5)},
	}
	for i, w := range want {
		ch, ok := c.GetChunk("b", i)
		if !ok {
			t.Fatalf("GetChunk(%d) missing", i)
		}
		if ch.ID != w.id || ch.StartOffset != w.start || ch.EndOffset != w.end || ch.ChapterIndex != w.chapter || ch.Content != w.content {
			t.Errorf("chunk %d = %+v, want %+v", i, *ch, w)
		}
	}
	if got := c.GetMemoryStats("b").Resident; got != 5 {
		t.Errorf("resident = %d, want 5", got)
	}

	if got := c.FindChunkByPosition("b", 22); got != 2 {
		t.Errorf("FindChunkByPosition(22) = %d, want 2", got)
	}
	if got := c.FindChunkByPosition("b", 25); got != 3 {
		t.Errorf("FindChunkByPosition(25) = %d, want 3", got)
	}
	if got := c.FindChunkByPosition("b", 40); got != 0 {
		t.Errorf("FindChunkByPosition(40) = %d, want 0 for an offset past the table", got)
	}
	if got := c.FindChunkByPosition("missing", 3); got != 0 {
		t.Errorf("FindChunkByPosition on unknown book = %d", got)
	}
}

func TestInitializeMultibyte(t *testing.T) {
	c, _ := newTestCache(config.Cache{ChunkSize: 3, MaxChunks: 10})
	c.Initialize("b", &book.Book{Chapters: []book.Chapter{{Content: "héllo wörld"}}})

	var joined strings.Builder
	prevEnd := -1
	for i := 0; i < c.GetTotalChunks("b"); i++ {
		ch, _ := c.GetChunk("b", i)
		if ch.StartOffset != prevEnd+1 {
			t.Errorf("chunk %d starts at %d, want %d", i, ch.StartOffset, prevEnd+1)
		}
		prevEnd = ch.EndOffset
		joined.WriteString(ch.Content)
		if i == 0 && ch.ID != "chapter-0-0" {
			t.Errorf("generated id = %q", ch.ID)
		}
	}
	if joined.String() != "héllo wörld" {
		t.Errorf("chunks join to %q", joined.String())
	}
	if prevEnd != 10 {
		t.Errorf("last EndOffset = %d, want 10", prevEnd)
	}
}

func TestGetChunkOutOfRange(t *testing.T) {
	c, _ := newTestCache(config.Cache{ChunkSize: 10, MaxChunks: 10})
	c.Initialize("b", twoChapterBook())

	for _, i := range []int{-1, 5, 9999} {
		if ch, ok := c.GetChunk("b", i); ok || ch != nil {
			t.Errorf("GetChunk(%d) = %v, %v; want nil, false", i, ch, ok)
		}
	}
	if _, ok := c.GetChunk("missing", 0); ok {
		t.Error("GetChunk on unknown book succeeded")
	}
	if got := c.GetChunksInRange("missing", 0, 3); got != nil {
		t.Errorf("GetChunksInRange on unknown book = %v", got)
	}
}

func TestGetChunksInRange(t *testing.T) {
	c, _ := newTestCache(config.Cache{ChunkSize: 10, PreloadDistance: 1, MaxChunks: 10})
	c.Initialize("b", twoChapterBook())

	got := c.GetChunksInRange("b", -5, 1)
	if len(got) != 2 || got[0].ID != "one-0" || got[1].ID != "one-1" {
		t.Fatalf("GetChunksInRange(-5, 1) = %+v", got)
	}
	c.Close()
	// Chunk 2 is warmed in the background.
	if stats := c.GetMemoryStats("b"); stats.Resident != 3 {
		t.Errorf("resident after preload = %d, want 3", stats.Resident)
	}

	got = c.GetChunksInRange("b", 2, 100)
	if len(got) != 3 || got[2].ID != "two-1" {
		t.Errorf("GetChunksInRange(2, 100) = %+v", got)
	}
	c.Close()
}

func TestEvictionBound(t *testing.T) {
	b := &book.Book{Chapters: []book.Chapter{{ID: "c", Content: strings.Repeat("x", 200)}}}
	c, _ := newTestCache(config.Cache{ChunkSize: 10, PreloadDistance: 1, MaxChunks: 3})
	c.Initialize("b", b)

	for i := 0; i < 20; i++ {
		if _, ok := c.GetChunk("b", i); !ok {
			t.Fatalf("GetChunk(%d) failed", i)
		}
		if r := c.GetMemoryStats("b").Resident; r > 3 {
			t.Fatalf("resident = %d after GetChunk(%d), want at most 3", r, i)
		}
	}

	for i := 10; i <= 13; i++ {
		c.GetChunk("b", i)
	}
	stats := c.GetMemoryStats("b")
	if stats.Resident != 3 || stats.Total != 20 || stats.Bytes != 30 {
		t.Errorf("stats = %+v", stats)
	}
	if got := residentSet(c, "b"); !equalSets(got, []int{11, 12, 13}) {
		t.Errorf("resident = %v, want [11 12 13]", got)
	}
}

func residentSet(c *Cache, bookID string) map[int]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[int]bool{}
	for i := range c.books[bookID].resident {
		out[i] = true
	}
	return out
}

func equalSets(got map[int]bool, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for _, i := range want {
		if !got[i] {
			return false
		}
	}
	return true
}

func TestEvictionPrefersFarChunks(t *testing.T) {
	b := &book.Book{Chapters: []book.Chapter{{ID: "c", Content: strings.Repeat("x", 200)}}}
	c, _ := newTestCache(config.Cache{ChunkSize: 10, PreloadDistance: 1, MaxChunks: 4})
	c.Initialize("b", b)

	for _, i := range []int{0, 9, 10, 11} {
		c.GetChunk("b", i)
	}
	// 0 and 9 are more than two preload distances from 12.
	c.GetChunk("b", 12)
	if got := residentSet(c, "b"); !equalSets(got, []int{10, 11, 12}) {
		t.Errorf("resident = %v, want [10 11 12]", got)
	}
}

func TestEvictionLeastRecentlyUsed(t *testing.T) {
	b := &book.Book{Chapters: []book.Chapter{{ID: "c", Content: strings.Repeat("x", 200)}}}
	c, _ := newTestCache(config.Cache{ChunkSize: 10, PreloadDistance: 5, MaxChunks: 3})
	c.Initialize("b", b)

	for _, i := range []int{0, 1, 2, 3} {
		c.GetChunk("b", i)
	}
	if got := residentSet(c, "b"); !equalSets(got, []int{1, 2, 3}) {
		t.Fatalf("resident = %v, want [1 2 3]", got)
	}
	c.GetChunk("b", 1)
	c.GetChunk("b", 4)
	if got := residentSet(c, "b"); !equalSets(got, []int{1, 3, 4}) {
		t.Errorf("resident = %v, want [1 3 4]", got)
	}
}

func TestInitializeReplaces(t *testing.T) {
	c, _ := newTestCache(config.Cache{ChunkSize: 10, MaxChunks: 10})
	c.Initialize("b", twoChapterBook())
	c.GetChunk("b", 0)
	c.Initialize("b", &book.Book{Chapters: []book.Chapter{{ID: "x", Content: "short"}}})

	if got := c.GetTotalChunks("b"); got != 1 {
		t.Errorf("GetTotalChunks = %d, want 1", got)
	}
	if got := c.GetMemoryStats("b").Resident; got != 0 {
		t.Errorf("resident after re-initialize = %d, want 0", got)
	}

	c.ClearBookCache("b")
	if c.GetTotalChunks("b") != 0 {
		t.Error("ClearBookCache left the partition table")
	}
	c.Initialize("nil", nil)
	if c.GetTotalChunks("nil") != 0 {
		t.Error("nil book should have no chunks")
	}
}

func TestSweep(t *testing.T) {
	c, clock := newTestCache(config.Cache{ChunkSize: 10, MaxChunks: 10, StaleAfter: time.Minute})
	c.Initialize("a", twoChapterBook())
	c.Initialize("b", twoChapterBook())
	c.GetChunk("a", 0)
	c.GetChunk("b", 1)

	if n := c.sweep(); n != 0 {
		t.Errorf("sweep evicted %d fresh chunks", n)
	}
	clock.Advance(2 * time.Minute)
	c.GetChunk("a", 2)
	if n := c.sweep(); n != 2 {
		t.Errorf("sweep evicted %d, want 2 stale chunks", n)
	}
	if c.GetMemoryStats("a").Resident != 1 || c.GetMemoryStats("b").Resident != 0 {
		t.Errorf("after sweep a=%d b=%d", c.GetMemoryStats("a").Resident, c.GetMemoryStats("b").Resident)
	}
	if c.GetTotalChunks("b") != 5 {
		t.Error("sweep must not touch the partition table")
	}
}

func TestStartClose(t *testing.T) {
	c := New(config.Cache{ChunkSize: 10, MaxChunks: 10, SweepInterval: 5 * time.Millisecond, StaleAfter: time.Nanosecond})
	c.Initialize("b", twoChapterBook())
	c.GetChunk("b", 0)
	c.Start()
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for c.GetMemoryStats("b").Resident != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background sweep never evicted the stale chunk")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Close()
	c.Close()
}
