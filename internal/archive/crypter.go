package archive

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Encrypted artifact framing: a fixed header (magic, version, argon2id
// salt) followed by length-prefixed AES-256-GCM sealed segments. Each
// segment's nonce is its zero-based counter; the version byte is bound
// as additional authenticated data. The final segment is the first one
// whose plaintext is shorter than segmentSize, so truncation on a
// segment boundary is detectable.
const (
	cryptVersion   byte = 0x01
	saltSize            = 16
	gcmNonceSize        = 12
	segmentSize         = 1 << 20
	maxFrameLength      = segmentSize + 64
)

var cryptMagic = []byte("CRAE")

var errTruncatedStream = errors.New("encrypted artifact truncated")

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func segmentNonce(counter uint64) []byte {
	nonce := make([]byte, gcmNonceSize)
	binary.BigEndian.PutUint64(nonce[gcmNonceSize-8:], counter)
	return nonce
}

type encryptWriter struct {
	dst     io.Writer
	aead    cipher.AEAD
	buf     []byte
	counter uint64
	closed  bool
}

func newEncryptWriter(dst io.Writer, passphrase string) (*encryptWriter, error) {
	if passphrase == "" {
		return nil, ErrEncryptionConfig
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 0, len(cryptMagic)+1+saltSize)
	header = append(header, cryptMagic...)
	header = append(header, cryptVersion)
	header = append(header, salt...)
	if _, err := dst.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &encryptWriter{dst: dst, aead: aead, buf: make([]byte, 0, segmentSize)}, nil
}

func (w *encryptWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write to closed encrypt writer")
	}
	total := len(p)
	for len(p) > 0 {
		room := segmentSize - len(w.buf)
		if room > len(p) {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
		p = p[room:]
		if len(w.buf) == segmentSize {
			if err := w.sealSegment(); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// Close seals the trailing partial segment. When the plaintext length is
// an exact multiple of segmentSize, an empty final segment is written as
// the terminator.
func (w *encryptWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.sealSegment()
}

func (w *encryptWriter) sealSegment() error {
	sealed := w.aead.Seal(nil, segmentNonce(w.counter), w.buf, []byte{cryptVersion})
	w.counter++
	w.buf = w.buf[:0]

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(sealed)))
	if _, err := w.dst.Write(length[:]); err != nil {
		return fmt.Errorf("write segment length: %w", err)
	}
	if _, err := w.dst.Write(sealed); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	return nil
}

type decryptReader struct {
	src     io.Reader
	aead    cipher.AEAD
	pending bytes.Reader
	counter uint64
	final   bool
}

func newDecryptReader(src io.Reader, passphrase string) (*decryptReader, error) {
	if passphrase == "" {
		return nil, ErrEncryptionConfig
	}
	header := make([]byte, len(cryptMagic)+1+saltSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header[:len(cryptMagic)], cryptMagic) {
		return nil, errors.New("not an encrypted courier artifact")
	}
	if header[len(cryptMagic)] != cryptVersion {
		return nil, fmt.Errorf("unsupported encryption version %d", header[len(cryptMagic)])
	}
	salt := header[len(cryptMagic)+1:]
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return &decryptReader{src: src, aead: aead}, nil
}

func (r *decryptReader) Read(p []byte) (int, error) {
	for r.pending.Len() == 0 {
		if r.final {
			return 0, io.EOF
		}
		if err := r.nextSegment(); err != nil {
			return 0, err
		}
	}
	return r.pending.Read(p)
}

func (r *decryptReader) nextSegment() error {
	var length [4]byte
	if _, err := io.ReadFull(r.src, length[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errTruncatedStream
		}
		return fmt.Errorf("read segment length: %w", err)
	}
	frameLength := binary.BigEndian.Uint32(length[:])
	if frameLength > maxFrameLength {
		return fmt.Errorf("segment length %d exceeds maximum", frameLength)
	}
	sealed := make([]byte, frameLength)
	if _, err := io.ReadFull(r.src, sealed); err != nil {
		return errTruncatedStream
	}

	plain, err := r.aead.Open(nil, segmentNonce(r.counter), sealed, []byte{cryptVersion})
	if err != nil {
		return fmt.Errorf("decrypt segment %d: %w", r.counter, err)
	}
	r.counter++
	if len(plain) < segmentSize {
		r.final = true
	}
	r.pending.Reset(plain)
	return nil
}
