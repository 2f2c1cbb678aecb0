package main

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bountygraph/internal/domain"
)

func TestParseTaskIDs(t *testing.T) {
	ids, err := parseTaskIDs("1, 2,10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 10 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if ids, err := parseTaskIDs(""); err != nil || ids != nil {
		t.Fatalf("empty list: %v %v", ids, err)
	}
	if _, err := parseTaskIDs("1,x"); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
}

func TestResolveWorkHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "work.txt")
	if err := os.WriteFile(path, []byte("proof"), 0o600); err != nil {
		t.Fatal(err)
	}
	h, err := resolveWorkHash("", path)
	if err != nil {
		t.Fatalf("file hash: %v", err)
	}
	if h != sha256.Sum256([]byte("proof")) {
		t.Fatalf("file hash mismatch")
	}

	hexHash := strings.Repeat("ab", 32)
	h, err = resolveWorkHash(hexHash, "")
	if err != nil {
		t.Fatalf("hex hash: %v", err)
	}
	if h[0] != 0xab || h[31] != 0xab {
		t.Fatalf("hex hash decoded wrong: %x", h)
	}

	for _, tc := range []struct{ hash, file string }{
		{"", ""},
		{"abcd", ""},
		{hexHash, path},
	} {
		if _, err := resolveWorkHash(tc.hash, tc.file); err == nil {
			t.Fatalf("expected error for hash=%q file=%q", tc.hash, tc.file)
		}
	}
}

func TestReadPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yml")
	body := "existing: [\"1\"]\ntasks:\n  - id: \"2\"\n    dependencies: [\"1\"]\n  - id: \"3\"\n    dependencies: [\"1\", \"2\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := readPlan(path)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if len(p.Existing) != 1 || len(p.Tasks) != 2 {
		t.Fatalf("unexpected plan %+v", p)
	}
	if p.Tasks[1].ID != "3" || len(p.Tasks[1].Dependencies) != 2 {
		t.Fatalf("unexpected task %+v", p.Tasks[1])
	}
}

func TestIntersectReady(t *testing.T) {
	tasks := []domain.Task{{TaskID: 1}, {TaskID: 2}, {TaskID: 3}}
	ready := []domain.Task{{TaskID: 3}, {TaskID: 1}}
	got := intersectReady(tasks, ready)
	if len(got) != 2 || got[0].TaskID != 1 || got[1].TaskID != 3 {
		t.Fatalf("unexpected tasks %+v", got)
	}
	if s := joinIDs([]uint64{1, 2, 3}); s != "1,2,3" {
		t.Fatalf("joinIDs = %q", s)
	}
}
