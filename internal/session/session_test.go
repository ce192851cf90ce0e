package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metcalfc/leaf/internal/book"
	"github.com/metcalfc/leaf/internal/config"
	"github.com/metcalfc/leaf/internal/layout"
	"github.com/metcalfc/leaf/internal/measure"
	"github.com/metcalfc/leaf/internal/state"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Reading.Margin = 0
	cfg.Cache.ChunkSize = 7
	cfg.Layout.SafetyMargin = 0
	cfg.Layout.MinHeight = 3
	return cfg
}

var testViewport = layout.Viewport{Width: 40, Height: 10}

func writeText(t *testing.T, paragraphs int) (string, []string) {
	t.Helper()
	var paras []string
	for i := 0; i < paragraphs; i++ {
		paras = append(paras, fmt.Sprintf("Hop up the apple path, step %d.", i))
	}
	path := filepath.Join(t.TempDir(), "walk.txt")
	if err := os.WriteFile(path, []byte(strings.Join(paras, "\n\n")), 0644); err != nil {
		t.Fatal(err)
	}
	return path, paras
}

func TestOpen(t *testing.T) {
	path, _ := writeText(t, 30)
	s, err := Open(context.Background(), path, testConfig(), measure.NewTerminalSurface(), testViewport)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.Book.ID != s.Hash || len(s.Hash) != 32 {
		t.Errorf("book id %q, hash %q", s.Book.ID, s.Hash)
	}
	if s.Engine().TotalPages() < 2 {
		t.Errorf("TotalPages() = %d, want several", s.Engine().TotalPages())
	}
	if s.Cache().GetTotalChunks(s.Hash) < 2 {
		t.Errorf("GetTotalChunks() = %d, want several", s.Cache().GetTotalChunks(s.Hash))
	}
	if s.Engine().CurrentPage() != 1 {
		t.Errorf("CurrentPage() = %d, want 1", s.Engine().CurrentPage())
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	os.WriteFile(empty, []byte("\n\n  \n"), 0644)

	if _, err := Open(context.Background(), filepath.Join(dir, "missing.txt"), testConfig(), measure.NewTerminalSurface(), testViewport); err == nil {
		t.Error("Open should fail for a missing file")
	}
	_, err := Open(context.Background(), empty, testConfig(), measure.NewTerminalSurface(), testViewport)
	if !errors.Is(err, book.ErrNoContent) {
		t.Errorf("Open(empty) error = %v, want ErrNoContent", err)
	}
}

func TestSearch(t *testing.T) {
	path, paras := writeText(t, 12)
	s, err := Open(context.Background(), path, testConfig(), measure.NewTerminalSurface(), testViewport)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	content := []rune(strings.ToLower(s.Book.Chapters[0].Content))

	tests := []struct {
		query string
		want  int
	}{
		{"P", strings.Count(strings.ToLower(strings.Join(paras, "")), "p")},
		{"apple path", len(paras)},
		{"step 11", 1},
		{"absent", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			matches := s.Search(tt.query, 0)
			if len(matches) != tt.want {
				t.Fatalf("Search(%q) found %d, want %d", tt.query, len(matches), tt.want)
			}
			q := []rune(strings.ToLower(tt.query))
			for _, m := range matches {
				if got := string(content[m.Offset : m.Offset+len(q)]); got != string(q) {
					t.Errorf("match at %d reads %q", m.Offset, got)
				}
				if m.Page < 1 || m.Page > s.Engine().TotalPages() {
					t.Errorf("match page %d out of range", m.Page)
				}
			}
		})
	}

	if got := s.Search("apple", 3); len(got) != 3 {
		t.Errorf("Search with limit 3 found %d", len(got))
	}
	last := s.Search("step 11", 0)
	if len(last) == 1 {
		if last[0].Page != s.Engine().TotalPages() {
			t.Errorf("step 11 on page %d, want last page %d", last[0].Page, s.Engine().TotalPages())
		}
		if !strings.Contains(last[0].Snippet, "step 11") {
			t.Errorf("snippet %q does not contain the match", last[0].Snippet)
		}
	}
}

func TestSearchFoldsRuneForRune(t *testing.T) {
	var paras []string
	for i := 0; i < 5; i++ {
		paras = append(paras, fmt.Sprintf("İİİİ İstanbul alpha %d.", i))
	}
	path := filepath.Join(t.TempDir(), "city.txt")
	if err := os.WriteFile(path, []byte(strings.Join(paras, "\n\n")), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(context.Background(), path, testConfig(), measure.NewTerminalSurface(), testViewport)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	content := []rune(s.Book.Chapters[0].Content)
	tests := []struct {
		query string
		want  string
	}{
		{"alpha", "alpha"},
		{"ALPHA 3", "alpha 3"},
		{"İSTANBUL", "istanbul"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			matches := s.Search(tt.query, 0)
			want := 5
			if strings.Contains(tt.want, "3") {
				want = 1
			}
			if len(matches) != want {
				t.Fatalf("Search(%q) found %d, want %d", tt.query, len(matches), want)
			}
			n := len([]rune(tt.want))
			for _, m := range matches {
				got := fold(string(content[m.Offset : m.Offset+n]))
				if got != tt.want {
					t.Errorf("match at %d reads %q, want %q", m.Offset, got, tt.want)
				}
				if !strings.Contains(fold(m.Snippet), tt.want) {
					t.Errorf("snippet %q does not contain %q", m.Snippet, tt.want)
				}
			}
		})
	}
}

func TestPositionRestore(t *testing.T) {
	path, _ := writeText(t, 30)
	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s, err := Open(ctx, path, testConfig(), measure.NewTerminalSurface(), testViewport, WithStore(store))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	last := s.Engine().TotalPages()
	s.Engine().GoToPage(last)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(ctx, path, testConfig(), measure.NewTerminalSurface(), testViewport, WithStore(store))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if s.Engine().CurrentPage() != last {
		t.Errorf("restored page %d, want %d", s.Engine().CurrentPage(), last)
	}
	s.Close()

	s, err = Open(ctx, path, testConfig(), measure.NewTerminalSurface(), testViewport, WithStore(store), Fresh(true))
	if err != nil {
		t.Fatalf("fresh open failed: %v", err)
	}
	if s.Engine().CurrentPage() != 1 {
		t.Errorf("fresh open on page %d, want 1", s.Engine().CurrentPage())
	}
	if err := s.Restart(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if _, ok := store.Position(s.Hash); ok {
		t.Error("Restart should clear the saved position")
	}
	s.engine.Close()
	s.cache.Close()
}
