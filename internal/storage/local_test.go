package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(filepath.Join(t.TempDir(), "uploads"), nil)
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	return l
}

func TestNewLocalCreatesRoot(t *testing.T) {
	l := newTestLocal(t)
	info, err := os.Stat(l.Root())
	if err != nil {
		t.Fatalf("root not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("root is not a directory")
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	l := newTestLocal(t)
	for _, name := range []string{"", ".", "..", "../secret.txt", "a/b.png", `a\b.png`} {
		if _, err := l.Resolve(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Resolve(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
	path, err := l.Resolve("1.png")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if path != filepath.Join(l.Root(), "1.png") {
		t.Fatalf("unexpected path: %s", path)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	l := newTestLocal(t)
	if err := l.WriteString("1.txt", "a cat"); err != nil {
		t.Fatalf("WriteString returned error: %v", err)
	}
	if err := l.WriteString("1.txt", "a dog"); err != nil {
		t.Fatalf("overwrite returned error: %v", err)
	}
	data, err := l.Read("1.txt")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(data) != "a dog" {
		t.Fatalf("unexpected content: %q", data)
	}

	names, err := l.Names()
	if err != nil {
		t.Fatalf("Names returned error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"1.txt"}) {
		t.Fatalf("temp files leaked: %#v", names)
	}
}

func TestReadMissing(t *testing.T) {
	l := newTestLocal(t)
	if _, err := l.Read("missing.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestOpenDirectoryIsNotExist(t *testing.T) {
	l := newTestLocal(t)
	if err := os.Mkdir(filepath.Join(l.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Open("sub"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestClearKeepsDirectories(t *testing.T) {
	l := newTestLocal(t)
	for _, name := range []string{"1.png", "1.txt", "b.gif"} {
		if _, err := l.Write(name, strings.NewReader("x")); err != nil {
			t.Fatalf("Write(%s) returned error: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(l.Root(), "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	removed, err := l.Clear()
	if err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	names, err := l.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("files remain: %#v", names)
	}
	if _, err := os.Stat(filepath.Join(l.Root(), "keep")); err != nil {
		t.Fatalf("directory removed: %v", err)
	}
}
