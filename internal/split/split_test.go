package split_test

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"courier/internal/logging"
	"courier/internal/split"
)

func writeArtifact(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	payload := make([]byte, size)
	rng := rand.New(rand.NewSource(7))
	rng.Read(payload)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path, payload
}

func TestPlanForPartCounts(t *testing.T) {
	cases := []struct {
		name      string
		size      int
		chunkSize int64
		want      int
	}{
		{"exact multiple", 100, 50, 2},
		{"with remainder", 101, 50, 3},
		{"under one chunk", 10, 50, 1},
		{"empty artifact", 0, 50, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, _ := writeArtifact(t, "data.tar.zst", tc.size)
			plan, err := split.PlanFor(path, tc.chunkSize)
			if err != nil {
				t.Fatalf("PlanFor failed: %v", err)
			}
			if plan.TotalParts != tc.want {
				t.Fatalf("expected %d parts, got %d", tc.want, plan.TotalParts)
			}
		})
	}
}

func TestWriteAndConcatenateRoundTrip(t *testing.T) {
	path, payload := writeArtifact(t, "backup.tar.zst", 250)
	plan, err := split.PlanFor(path, 100)
	if err != nil {
		t.Fatalf("PlanFor failed: %v", err)
	}

	destDir := t.TempDir()
	parts, err := plan.Write(destDir, logging.NewNop())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}

	var joined bytes.Buffer
	for i, part := range parts {
		wantName := "backup.tar.zst." + []string{"001", "002", "003"}[i]
		if filepath.Base(part.Path) != wantName {
			t.Fatalf("part %d named %s, want %s", i+1, filepath.Base(part.Path), wantName)
		}
		if part.Index != i+1 {
			t.Fatalf("part index %d, want %d", part.Index, i+1)
		}
		data, err := os.ReadFile(part.Path)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		joined.Write(data)
	}
	if parts[0].Size != 100 || parts[2].Size != 50 {
		t.Fatalf("unexpected part sizes: %d, %d", parts[0].Size, parts[2].Size)
	}
	if !bytes.Equal(joined.Bytes(), payload) {
		t.Fatal("concatenated parts do not reproduce the artifact")
	}
}

func TestCleanupRemovesParts(t *testing.T) {
	path, _ := writeArtifact(t, "big.tar.zst", 120)
	plan, err := split.PlanFor(path, 50)
	if err != nil {
		t.Fatalf("PlanFor failed: %v", err)
	}
	parts, err := plan.Write(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	split.Cleanup(parts, logging.NewNop())
	for _, part := range parts {
		if _, err := os.Stat(part.Path); !os.IsNotExist(err) {
			t.Fatalf("part %s still present after cleanup", part.Path)
		}
	}
	// Cleaning up twice is harmless.
	split.Cleanup(parts, logging.NewNop())
}

func TestInstructions(t *testing.T) {
	msg := split.Instructions("photos.tar.zst", 4, true)
	for _, want := range []string{
		"Download all parts (4 in total)",
		"copy /b photos.tar.zst.* photos.tar.zst",
		"cat photos.tar.zst.* > photos.tar.zst",
		"encrypted",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("instructions missing %q:\n%s", want, msg)
		}
	}
	plain := split.Instructions("photos.tar.zst", 2, false)
	if !strings.Contains(plain, "not encrypted") {
		t.Fatalf("expected unencrypted note:\n%s", plain)
	}
}
