package model

import (
	"errors"
	"testing"
	"time"
)

// TestNewIndex tests Index construction.
func TestNewIndex(t *testing.T) {
	t.Parallel()

	seeds := []string{"https://writeups.example.com/2022/404ctf"}
	idx := NewIndex("example", "https://writeups.example.com", seeds)

	t.Run("assigns a run ID", func(t *testing.T) {
		t.Parallel()
		if len(idx.RunID) != 36 {
			t.Errorf("expected UUID run ID, got %q", idx.RunID)
		}
	})

	t.Run("copies seeds", func(t *testing.T) {
		t.Parallel()
		if len(idx.Seeds) != 1 || idx.Seeds[0] != seeds[0] {
			t.Errorf("unexpected seeds %v", idx.Seeds)
		}
		if &idx.Seeds[0] == &seeds[0] {
			t.Error("expected seeds to be copied")
		}
	})

	t.Run("run IDs are unique", func(t *testing.T) {
		t.Parallel()
		other := NewIndex("example", "https://writeups.example.com", nil)
		if other.RunID == idx.RunID {
			t.Error("expected distinct run IDs")
		}
	})

	t.Run("starts with empty results", func(t *testing.T) {
		t.Parallel()
		if idx.WriteupCount() != 0 {
			t.Errorf("expected 0 write-ups, got %d", idx.WriteupCount())
		}
		if idx.Duration() != 0 {
			t.Errorf("expected zero duration before finish, got %v", idx.Duration())
		}
	})
}

// TestIndexPreview tests that Preview returns the first sorted records.
func TestIndexPreview(t *testing.T) {
	t.Parallel()

	idx := &Index{Records: []Record{
		{Year: "2023"}, {Year: "2021"}, {Year: "2022"},
	}}

	got := idx.Preview(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Year != "2021" || got[1].Year != "2022" {
		t.Errorf("unexpected preview order: %v", got)
	}

	if all := idx.Preview(10); len(all) != 3 {
		t.Errorf("expected all 3 records, got %d", len(all))
	}
}

// TestIndexStatus tests the status text.
func TestIndexStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		idx  Index
		want string
	}{
		{name: "complete", idx: Index{}, want: "complete"},
		{name: "cancelled", idx: Index{TimedOut: true, ErrorMessage: "x"}, want: "cancelled (partial results)"},
		{name: "error", idx: Index{Error: errors.New("boom"), ErrorMessage: "boom"}, want: "error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.idx.Status(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestIndexDuration tests the elapsed time calculation.
func TestIndexDuration(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	idx := &Index{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	if idx.Duration() != 90*time.Second {
		t.Errorf("expected 90s, got %v", idx.Duration())
	}
}

// TestVisitFailed tests the Failed helper.
func TestVisitFailed(t *testing.T) {
	t.Parallel()

	if (Visit{URL: "u", StatusCode: 200}).Failed() {
		t.Error("expected successful visit")
	}
	if !(Visit{URL: "u", StatusCode: 500, Error: "status 500"}).Failed() {
		t.Error("expected failed visit")
	}
}
