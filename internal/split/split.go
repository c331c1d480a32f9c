// Package split partitions oversized artifacts into ordered chunks that
// fit under the transport payload ceiling, and builds the reassembly
// instructions delivered after the final chunk.
package split

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"courier/internal/logging"
)

// DefaultChunkSize stays below the remote endpoint's payload ceiling.
const DefaultChunkSize int64 = 45 << 20

// Plan describes how an artifact will be partitioned.
type Plan struct {
	ArtifactPath string
	ChunkSize    int64
	Size         int64
	TotalParts   int
}

// Part is one chunk file produced by Plan.Write.
type Part struct {
	Index int // 1-based
	Path  string
	Size  int64
}

// PlanFor stats the artifact and computes the part count for the given
// chunk size. TotalParts is ceil(size/chunkSize); a zero-byte artifact
// still yields one part so something is delivered.
func PlanFor(artifactPath string, chunkSize int64) (Plan, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	info, err := os.Stat(artifactPath)
	if err != nil {
		return Plan{}, fmt.Errorf("stat artifact: %w", err)
	}
	parts := int(info.Size() / chunkSize)
	if info.Size()%chunkSize != 0 || info.Size() == 0 {
		parts++
	}
	return Plan{
		ArtifactPath: artifactPath,
		ChunkSize:    chunkSize,
		Size:         info.Size(),
		TotalParts:   parts,
	}, nil
}

// Write produces the chunk files under destDir, named
// "<basename>.NNN" with a 1-based zero-padded sequence. Every part is
// exactly ChunkSize bytes except possibly the last. On error the
// already-written parts are removed before returning.
func (p Plan) Write(destDir string, logger *slog.Logger) ([]Part, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	src, err := os.Open(p.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	base := filepath.Base(p.ArtifactPath)
	parts := make([]Part, 0, p.TotalParts)
	for index := 1; index <= p.TotalParts; index++ {
		partPath := filepath.Join(destDir, fmt.Sprintf("%s.%03d", base, index))
		written, err := writePart(src, partPath, p.ChunkSize)
		if err != nil {
			Cleanup(parts, logger)
			return nil, fmt.Errorf("write part %d/%d: %w", index, p.TotalParts, err)
		}
		parts = append(parts, Part{Index: index, Path: partPath, Size: written})
	}
	return parts, nil
}

func writePart(src io.Reader, path string, limit int64) (int64, error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, io.LimitReader(src, limit))
	if err != nil {
		out.Close()
		os.Remove(path)
		return 0, err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return 0, err
	}
	return written, nil
}

// Cleanup removes chunk files best-effort. Failures are logged and
// otherwise ignored so a stuck chunk never blocks the cycle.
func Cleanup(parts []Part, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, part := range parts {
		if err := os.Remove(part.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove chunk file",
				logging.String("path", part.Path),
				logging.Error(err))
		}
	}
}

// Instructions renders the human-readable reassembly message sent after
// the final chunk. artifactName is the container file name the parts
// concatenate back into.
func Instructions(artifactName string, totalParts int, encrypted bool) string {
	note := "The archive is not encrypted."
	if encrypted {
		note = "The archive is encrypted. You'll need the passphrase to extract it."
	}
	var b strings.Builder
	b.WriteString("```\n")
	fmt.Fprintf(&b, "To reassemble the file:\n")
	fmt.Fprintf(&b, "1. Download all parts (%d in total)\n", totalParts)
	b.WriteString("2. Use one of the following commands:\n")
	fmt.Fprintf(&b, "   # Windows\n   copy /b %s.* %s\n\n", artifactName, artifactName)
	fmt.Fprintf(&b, "   # Linux/Mac\n   cat %s.* > %s\n", artifactName, artifactName)
	fmt.Fprintf(&b, "3. Extract %s\n\n", artifactName)
	b.WriteString(note)
	b.WriteString("\n```")
	return b.String()
}
