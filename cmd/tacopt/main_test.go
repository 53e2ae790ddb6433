package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadInput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.json")
	if err := os.WriteFile(path, []byte(`{"functions":[]}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	data, err := readInput(path)
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	if string(data) != `{"functions":[]}` {
		t.Errorf("unexpected contents: %s", data)
	}
}

func TestReadInput_Stdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()

	go func() {
		_, _ = w.Write([]byte(`{"functions":[]}`))
		_ = w.Close()
	}()

	data, err := readInput("-")
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	if !strings.Contains(string(data), "functions") {
		t.Errorf("unexpected contents: %s", data)
	}
}
