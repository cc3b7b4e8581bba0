package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nao1215/ctfindex/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *IndexDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newTestIndex builds a finished index for site with the given write-ups.
func newTestIndex(site string, startedAt time.Time, records ...model.Record) *model.Index {
	idx := model.NewIndex(site, "https://writeups.example.com", []string{"https://writeups.example.com/2022/404ctf"})
	idx.StartedAt = startedAt
	idx.FinishedAt = startedAt.Add(time.Minute)
	for _, r := range records {
		idx.WriteupURLs = append(idx.WriteupURLs, r.URL)
	}
	idx.Records = append(idx.Records, records...)
	idx.PagesVisited = 2
	idx.Visits = []model.Visit{
		{URL: "https://writeups.example.com/2022/404ctf", StatusCode: 200},
		{URL: "https://writeups.example.com/2022/404ctf?page=2", StatusCode: 500, Error: "unexpected HTTP status: 500"},
	}
	idx.FetchFailures = []model.FetchFailure{
		{URL: "https://writeups.example.com/2022/404ctf?page=2", Message: "unexpected HTTP status: 500"},
	}
	idx.PerformedSteps = []string{"crawl", "classify"}
	return idx
}

var (
	babyHeap = model.Record{
		Year: "2022", CTF: "404 CTF", Category: "pwn", Title: "Baby Heap",
		URL: "https://writeups.example.com/2022/404ctf/pwn/baby-heap",
	}
	rsaFun = model.Record{
		Year: "2023", CTF: "SomeOtherCTF", Category: "crypto", Title: "Rsa Fun",
		URL: "https://writeups.example.com/2023/SomeOtherCTF/crypto/rsa-fun",
	}
	broken = model.NewPlaceholderRecord("https://writeups.example.com/2022/404ctf")
)

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("refuses to create when CreateIfNotExists is false", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if _, err := db.SaveIndex(context.Background(), newTestIndex("blog", time.Now(), babyHeap)); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		sites, err := db.ListSites(context.Background())
		if err != nil {
			t.Fatalf("failed to list sites: %v", err)
		}
		if diff := cmp.Diff([]string{"blog"}, sites); diff != "" {
			t.Errorf("sites mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSaveAndGetIndex(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	idx := newTestIndex("blog", started, babyHeap, rsaFun, broken)

	id, err := db.SaveIndex(ctx, idx)
	if err != nil {
		t.Fatalf("failed to save index: %v", err)
	}

	t.Run("index round-trips through JSON", func(t *testing.T) {
		got, err := db.GetIndexByID(ctx, id)
		if err != nil {
			t.Fatalf("failed to get index: %v", err)
		}
		if diff := cmp.Diff(idx, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
			t.Errorf("index mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown id returns nil", func(t *testing.T) {
		got, err := db.GetIndexByID(ctx, id+100)
		if err != nil || got != nil {
			t.Errorf("expected (nil, nil), got (%v, %v)", got, err)
		}
	})

	t.Run("write-ups are stored sorted", func(t *testing.T) {
		got, err := db.GetWriteups(ctx, id)
		if err != nil {
			t.Fatalf("failed to get write-ups: %v", err)
		}
		want := []model.Record{babyHeap, rsaFun, broken}
		model.SortRecords(want)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("write-ups mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("summary groups by year and competition", func(t *testing.T) {
		got, err := db.SummarizeRun(ctx, id)
		if err != nil {
			t.Fatalf("failed to summarize: %v", err)
		}
		want := []model.GroupCount{
			{Year: "2022", CTF: "404 CTF", Count: 1},
			{Year: "2023", CTF: "SomeOtherCTF", Count: 1},
			{Year: model.NotAvailable, CTF: model.NotAvailable, Count: 1},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failed pages are stored", func(t *testing.T) {
		got, err := db.GetFailedPages(ctx, id)
		if err != nil {
			t.Fatalf("failed to get pages: %v", err)
		}
		if len(got) != 1 || got[0].StatusCode != 500 {
			t.Errorf("unexpected failed pages %+v", got)
		}
	})
}

func TestRunHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	oldID, err := db.SaveIndex(ctx, newTestIndex("blog", base, babyHeap))
	if err != nil {
		t.Fatal(err)
	}
	newID, err := db.SaveIndex(ctx, newTestIndex("blog", base.Add(24*time.Hour), babyHeap, rsaFun))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveIndex(ctx, newTestIndex("other", base, rsaFun)); err != nil {
		t.Fatal(err)
	}

	history, err := db.GetRunHistory(ctx, "blog")
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(history))
	}
	if history[0].ID != newID || history[1].ID != oldID {
		t.Errorf("expected newest first, got ids %d, %d", history[0].ID, history[1].ID)
	}
	if history[0].WriteupCount != 2 || history[0].FailureCount != 1 || history[0].Status != "complete" {
		t.Errorf("unexpected metadata %+v", history[0])
	}
	if !history[0].StartedAt.Equal(base.Add(24 * time.Hour)) {
		t.Errorf("unexpected start time %v", history[0].StartedAt)
	}

	latest, err := db.GetLatestIndex(ctx, "blog")
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if latest == nil || latest.WriteupCount() != 2 {
		t.Errorf("expected the newest run, got %+v", latest)
	}

	missing, err := db.GetLatestIndex(ctx, "never-crawled")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for an unknown site, got (%v, %v)", missing, err)
	}

	sites, err := db.ListSites(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"blog", "other"}, sites); diff != "" {
		t.Errorf("sites mismatch (-want +got):\n%s", diff)
	}

	if err := db.DeleteRun(ctx, oldID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	records, err := db.GetWriteups(ctx, oldID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected write-ups to be deleted with their run, got %d", len(records))
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{
		formatTimestamp(want),
		"2024-05-01 10:00:00",
		"2024-05-01T10:00:00Z",
		"2024-05-01T12:00:00+02:00",
	} {
		if got := parseTimestamp(s); !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", s, got, want)
		}
	}

	if got := parseTimestamp("yesterday"); !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
}
