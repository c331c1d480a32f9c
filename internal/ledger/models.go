package ledger

import "time"

// Algorithm names the symmetric scheme protecting a delivered artifact.
type Algorithm string

const (
	AlgorithmNone Algorithm = "None"
	AlgorithmAES  Algorithm = "AES"
)

// FileRecord captures the last successfully delivered version of one
// monitored file. Records are keyed by path in the ledger; content
// change is detected via Hash. A record exists only for fully delivered
// files: partial failures never reach the ledger.
type FileRecord struct {
	Hash           string    `json:"hash"`
	LastSentAt     time.Time `json:"last_sent"`
	Delivered      bool      `json:"send_success"`
	Encrypted      bool      `json:"encrypted"`
	Algorithm      Algorithm `json:"encryption_algorithm"`
	SequenceID     int64     `json:"file_id"`
	OriginalSize   int64     `json:"file_size"`
	ProcessedSize  int64     `json:"processed_size"`
	ProcessingMs   float64   `json:"processing_time"`
	UploadBytesSec float64   `json:"upload_speed"`
}
