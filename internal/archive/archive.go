package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/klauspost/compress/zstd"

	"courier/internal/logging"
)

// Compression selects the zstd encoder level, or disables archiving
// entirely.
type Compression string

const (
	CompressionDefault Compression = "default"
	CompressionFast    Compression = "fast"
	CompressionNone    Compression = "none"
)

// Artifact suffixes. A source file already carrying ContainerSuffix is
// delivered as-is unless encryption is requested.
const (
	ContainerSuffix = ".tar.zst"
	EncryptedSuffix = ".tar.zst.aes"
)

var (
	// ErrEncryptionConfig reports encryption requested without a
	// passphrase. Config validation catches this at startup; the check
	// here guards direct library use.
	ErrEncryptionConfig = errors.New("encryption requested with empty passphrase")

	// ErrDiskFull and ErrPermission classify scratch-write failures for
	// logging and event reporting.
	ErrDiskFull   = errors.New("scratch storage full")
	ErrPermission = errors.New("scratch storage permission denied")
)

// Spec describes how a source file becomes a transportable artifact.
type Spec struct {
	Compression Compression
	Encrypt     bool
	Passphrase  string
}

// Result is the produced artifact. Owned reports whether the archiver
// created the file in scratch storage; when false the artifact is the
// source file itself and must not be deleted by the caller.
type Result struct {
	Path  string
	Owned bool
}

// Archiver builds single-file container artifacts in a scratch
// directory.
type Archiver struct {
	scratchDir string
	logger     *slog.Logger
}

// New returns an Archiver writing artifacts under scratchDir.
func New(scratchDir string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Archiver{scratchDir: scratchDir, logger: logger}
}

// Create produces the artifact for srcPath according to spec. The
// source is streamed through tar, zstd, and (when enabled) AES-GCM; no
// whole-file buffering occurs.
func (a *Archiver) Create(srcPath string, spec Spec) (Result, error) {
	if spec.Encrypt && spec.Passphrase == "" {
		return Result{}, ErrEncryptionConfig
	}

	lower := strings.ToLower(srcPath)
	if spec.Compression == CompressionNone {
		return Result{Path: srcPath}, nil
	}
	if !spec.Encrypt && (strings.HasSuffix(lower, ContainerSuffix) || strings.HasSuffix(lower, EncryptedSuffix)) {
		return Result{Path: srcPath}, nil
	}

	if err := os.MkdirAll(a.scratchDir, 0o755); err != nil {
		return Result{}, classifyScratchError(fmt.Errorf("ensure scratch directory: %w", err))
	}

	baseName := filepath.Base(srcPath)
	suffix := ContainerSuffix
	if spec.Encrypt {
		suffix = EncryptedSuffix
	}
	outPath := filepath.Join(a.scratchDir, baseName+suffix)

	if err := a.build(srcPath, outPath, baseName, spec); err != nil {
		os.Remove(outPath)
		return Result{}, err
	}

	a.logger.Debug("artifact created",
		logging.String("source", srcPath),
		logging.String("artifact", outPath),
		logging.Bool("encrypted", spec.Encrypt),
	)
	return Result{Path: outPath, Owned: true}, nil
}

func (a *Archiver) build(srcPath, outPath, entryName string, spec Spec) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return classifyScratchError(fmt.Errorf("open source: %w", err))
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return classifyScratchError(fmt.Errorf("create artifact: %w", err))
	}
	defer out.Close()

	var sink io.Writer = out
	var encWriter *encryptWriter
	if spec.Encrypt {
		encWriter, err = newEncryptWriter(out, spec.Passphrase)
		if err != nil {
			return fmt.Errorf("init encryption: %w", err)
		}
		sink = encWriter
	}

	zstdWriter, err := zstd.NewWriter(sink, zstd.WithEncoderLevel(encoderLevel(spec.Compression)))
	if err != nil {
		return fmt.Errorf("init zstd: %w", err)
	}

	tarWriter := tar.NewWriter(zstdWriter)
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header: %w", err)
	}
	header.Name = entryName
	if err := tarWriter.WriteHeader(header); err != nil {
		return classifyScratchError(fmt.Errorf("write tar header: %w", err))
	}
	if _, err := io.Copy(tarWriter, src); err != nil {
		return classifyScratchError(fmt.Errorf("archive %s: %w", srcPath, err))
	}

	if err := tarWriter.Close(); err != nil {
		return classifyScratchError(fmt.Errorf("finish tar: %w", err))
	}
	if err := zstdWriter.Close(); err != nil {
		return classifyScratchError(fmt.Errorf("finish zstd: %w", err))
	}
	if encWriter != nil {
		if err := encWriter.Close(); err != nil {
			return classifyScratchError(fmt.Errorf("finish encryption: %w", err))
		}
	}
	if err := out.Sync(); err != nil {
		return classifyScratchError(fmt.Errorf("sync artifact: %w", err))
	}
	return out.Close()
}

// Extract reverses Create: it unpacks the single entry of the artifact
// at artifactPath into destDir and returns the written path. Used by the
// admin download boundary and tests.
func Extract(artifactPath, destDir, passphrase string) (string, error) {
	in, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	var source io.Reader = in
	if strings.HasSuffix(strings.ToLower(artifactPath), EncryptedSuffix) {
		decReader, err := newDecryptReader(in, passphrase)
		if err != nil {
			return "", fmt.Errorf("init decryption: %w", err)
		}
		source = decReader
	}

	zstdReader, err := zstd.NewReader(source)
	if err != nil {
		return "", fmt.Errorf("init zstd: %w", err)
	}
	defer zstdReader.Close()

	tarReader := tar.NewReader(zstdReader)
	header, err := tarReader.Next()
	if err != nil {
		return "", fmt.Errorf("read tar entry: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure destination: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(header.Name))
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, tarReader); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("extract %s: %w", artifactPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return "", err
	}
	return destPath, nil
}

func encoderLevel(level Compression) zstd.EncoderLevel {
	if level == CompressionFast {
		return zstd.SpeedFastest
	}
	return zstd.SpeedDefault
}

func classifyScratchError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrDiskFull, err)
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
