package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jvbeek/palimpsest/internal/align"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestCorrectFile_PlainText(t *testing.T) {
	t.Parallel()

	ocr := writeTemp(t, "ocr.txt", "This is a smple text.")
	man := writeTemp(t, "man.txt", "This is a sample text.")
	out := filepath.Join(t.TempDir(), "out.txt")

	if err := correctFile(ocr, man, out, nil); err != nil {
		t.Fatalf("correctFile: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if got, want := string(data), "This is a ~sample text.\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCorrectFile_MalformedXMLRejected(t *testing.T) {
	t.Parallel()

	ocr := writeTemp(t, "ocr.xml", "<PcGts><TextLine>")
	man := writeTemp(t, "man.txt", "some text")
	out := filepath.Join(t.TempDir(), "out.xml")

	err := correctFile(ocr, man, out, nil)
	if err == nil {
		t.Fatal("correctFile accepted truncated XML, want error")
	}
	if !strings.Contains(err.Error(), "ocr.xml") {
		t.Errorf("error = %v, want mention of the OCR file", err)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		t.Error("output file written despite parse failure")
	}
}

func TestCorrectFile_CustomSeparatorExpanded(t *testing.T) {
	t.Parallel()

	ocr := writeTemp(t, "ocr.txt", "The quick brown fox.")
	man := writeTemp(t, "man.txt", "The quick brown fox jumps over the lazy dog.")
	out := filepath.Join(t.TempDir(), "out.txt")

	opts := []align.Option{align.WithWordSeparator("@@GLUE@@")}
	if err := correctFile(ocr, man, out, opts); err != nil {
		t.Fatalf("correctFile: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if strings.Contains(string(data), "@@GLUE@@") {
		t.Errorf("output = %q, glue token not expanded", data)
	}
	if !strings.Contains(string(data), "jumps over the lazy dog.") {
		t.Errorf("output = %q, want expanded insertion words", data)
	}
}
