package recording

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRecorderWritesRawBytes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	r, err := Open(dir, "abc")
	if err != nil {
		t.Fatal(err)
	}

	chunks := [][]byte{{1, 2, 3}, {4}, {5, 6}}
	for _, c := range chunks {
		if _, err := r.Write(c); err != nil {
			t.Fatal(err)
		}
	}
	if r.Size() != 6 {
		t.Errorf("Size() = %d, want 6", r.Size())
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "abc.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("file contents = %v", got)
	}
	if r.Path() != filepath.Join(dir, "abc.raw") {
		t.Errorf("Path() = %q", r.Path())
	}
}

func TestRecorderDisabled(t *testing.T) {
	r, err := Open("", "abc")
	if err != nil || r != nil {
		t.Fatalf("Open(\"\") = %v, %v; want nil, nil", r, err)
	}
	if n, err := r.Write([]byte{1, 2}); n != 2 || err != nil {
		t.Errorf("Write on nil recorder = %d, %v", n, err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil recorder = %v", err)
	}
	if r.Path() != "" || r.Size() != 0 {
		t.Error("nil recorder should report nothing")
	}
}

func TestRecorderSessionIDCannotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, "../../evil")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if filepath.Dir(r.Path()) != dir {
		t.Errorf("Path() = %q escapes %q", r.Path(), dir)
	}
}
