package writeup

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/ctfindex/internal/model"
)

const base = "https://writeups.example.com"

// TestClassifierParse covers the record shapes produced for each rule.
func TestClassifierParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want model.Record
	}{
		{
			name: "404 CTF write-up",
			url:  base + "/2022/404ctf/pwn/baby-heap",
			want: model.Record{Year: "2022", CTF: "404 CTF", Category: "pwn", Title: "Baby Heap"},
		},
		{
			name: "404 CTF edition slug",
			url:  base + "/2023/404ctf-2023/web/cookie-monster",
			want: model.Record{Year: "2023", CTF: "404 CTF", Category: "web", Title: "Cookie Monster"},
		},
		{
			name: "Operation Kernel write-up",
			url:  base + "/2022/operation-kernel/forensic/lost-drive",
			want: model.Record{Year: "2022", CTF: "Operation Kernel", Category: "forensic", Title: "Lost Drive"},
		},
		{
			name: "DVCTF write-up",
			url:  base + "/2021/dvctf-to-join-davincicode/crypto/mona-lisa",
			want: model.Record{Year: "2021", CTF: "DVCTF", Category: "crypto", Title: "Mona Lisa"},
		},
		{
			name: "DVCTF landing page has no category",
			url:  base + "/2021/dvctf-to-join-davincicode",
			want: model.Record{Year: "2021", CTF: "DVCTF", Category: "N/A", Title: "Dvctf To Join Davincicode"},
		},
		{
			name: "unknown competition falls back to path segment",
			url:  base + "/2023/SomeOtherCTF/crypto/rsa-fun",
			want: model.Record{Year: "2023", CTF: "SomeOtherCTF", Category: "crypto", Title: "Rsa Fun"},
		},
		{
			name: "fallback with two segments has no category",
			url:  base + "/2023/SomeOtherCTF",
			want: model.Record{Year: "2023", CTF: "SomeOtherCTF", Category: "N/A", Title: "Someotherctf"},
		},
		{
			name: "category is the second-to-last of deep paths",
			url:  base + "/2022/404ctf/misc/part-1/final-step",
			want: model.Record{Year: "2022", CTF: "404 CTF", Category: "part-1", Title: "Final Step"},
		},
		{
			name: "trailing slash is ignored",
			url:  base + "/2022/404ctf/pwn/baby-heap/",
			want: model.Record{Year: "2022", CTF: "404 CTF", Category: "pwn", Title: "Baby Heap"},
		},
		{
			name: "dvctf rule wins over 404ctf token",
			url:  base + "/2021/dvctf-to-join-davincicode/404ctf-like/x",
			want: model.Record{Year: "2021", CTF: "DVCTF", Category: "404ctf-like", Title: "X"},
		},
		{
			name: "percent-encoded competition stays verbatim",
			url:  base + "/2023/Some%20CTF/web/sqli",
			want: model.Record{Year: "2023", CTF: "Some%20CTF", Category: "web", Title: "Sqli"},
		},
		{
			name: "encoded slash does not split a segment",
			url:  base + "/2022/404ctf/web/a%2Fb",
			want: model.Record{Year: "2022", CTF: "404 CTF", Category: "web", Title: "A%2Fb"},
		},
		{
			name: "encoded slash in the category",
			url:  base + "/2023/SomeOtherCTF/re%2Fpwn/chall",
			want: model.Record{Year: "2023", CTF: "SomeOtherCTF", Category: "re%2Fpwn", Title: "Chall"},
		},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.want.URL = tt.url
			got := c.Parse(tt.url)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestClassifierDegradation verifies that unclassifiable URLs become placeholders.
func TestClassifierDegradation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{name: "404 CTF without category", url: base + "/2022/404ctf"},
		{name: "Operation Kernel without category", url: base + "/2022/operation-kernel"},
		{name: "fallback without competition", url: base + "/2022"},
		{name: "empty path", url: base},
		{name: "unparsable URL", url: "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			c := NewClassifier(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

			got := c.Parse(tt.url)
			if diff := cmp.Diff(model.NewPlaceholderRecord(tt.url), got); diff != "" {
				t.Errorf("expected placeholder (-want +got):\n%s", diff)
			}
			if !strings.Contains(buf.String(), "cannot parse write-up URL") {
				t.Errorf("expected degradation to be logged, got %q", buf.String())
			}
		})
	}
}

// TestClassifierClassify tests the strict form returns typed errors.
func TestClassifierClassify(t *testing.T) {
	t.Parallel()

	c := NewClassifier()

	t.Run("too few segments", func(t *testing.T) {
		t.Parallel()
		_, err := c.Classify(base + "/2022/404ctf")
		if !errors.Is(err, ErrTooFewSegments) {
			t.Errorf("expected ErrTooFewSegments, got %v", err)
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		t.Parallel()
		_, err := c.Classify("http://[::1")
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL, got %v", err)
		}
	})

	t.Run("minimum matching path", func(t *testing.T) {
		t.Parallel()
		r, err := c.Classify(base + "/2022/404ctf/x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Category != "404ctf" || r.Title != "X" {
			t.Errorf("unexpected record %+v", r)
		}
	})
}

// TestClassifierCustomRules tests WithRules ordering.
func TestClassifierCustomRules(t *testing.T) {
	t.Parallel()

	c := NewClassifier(WithRules([]Rule{
		{Token: "hackvens", Name: "Hackvens"},
		{Token: "hack", Name: "Generic Hack"},
	}))

	got := c.Parse(base + "/2023/hackvens-2023/web/login")
	if got.CTF != "Hackvens" {
		t.Errorf("expected first matching rule to win, got %q", got.CTF)
	}

	got = c.Parse(base + "/2022/404ctf/pwn/baby-heap")
	if got.CTF != "404ctf" {
		t.Errorf("expected default rules to be replaced, got %q", got.CTF)
	}
}

// TestClassifierParseAll tests that order is preserved and nothing is dropped.
func TestClassifierParseAll(t *testing.T) {
	t.Parallel()

	urls := []string{
		base + "/2022/404ctf/pwn/baby-heap",
		base + "/2022/404ctf",
		base + "/2023/SomeOtherCTF/crypto/rsa-fun",
	}

	c := NewClassifier(WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	records := c.ParseAll(urls)

	if len(records) != len(urls) {
		t.Fatalf("expected %d records, got %d", len(urls), len(records))
	}
	for i, r := range records {
		if r.URL != urls[i] {
			t.Errorf("record %d: expected URL %q, got %q", i, urls[i], r.URL)
		}
	}
	if !records[1].Placeholder {
		t.Error("expected second record to be a placeholder")
	}
}

// TestFormatTitle tests slug to title conversion.
func TestFormatTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		slug string
		want string
	}{
		{slug: "baby-heap", want: "Baby Heap"},
		{slug: "rsa-fun", want: "Rsa Fun"},
		{slug: "SQLi-everywhere", want: "Sqli Everywhere"},
		{slug: "single", want: "Single"},
		{slug: "already spaced", want: "Already Spaced"},
		{slug: "double--hyphen", want: "Double  Hyphen"},
		{slug: "l33t-h4x", want: "L33T H4X"},
		{slug: "part2flag", want: "Part2Flag"},
		{slug: "foo_bar", want: "Foo_Bar"},
		{slug: "don't-panic", want: "Don'T Panic"},
		{slug: "a%2Fb", want: "A%2Fb"},
		{slug: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			t.Parallel()
			if got := formatTitle(tt.slug); got != tt.want {
				t.Errorf("formatTitle(%q) = %q, want %q", tt.slug, got, tt.want)
			}
		})
	}
}
