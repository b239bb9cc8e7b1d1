package offlinequeue

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/wurt83ow/backoffice-client/pkg/models"
)

const digestPrefix = "blake2b-256:"

// Digest is the content address of an attachment.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return digestPrefix + hex.EncodeToString(sum[:])
}

// Attach reads r fully so the attachment can survive in the queue.
// Callers holding a file handle must go through here (or AttachFile) before
// building a QueuedAction.
func Attach(field, fileName, contentType string, r io.Reader) (models.Attachment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to read attachment %q: %w", fileName, err)
	}
	if data == nil {
		data = []byte{}
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return models.Attachment{
		Field:       field,
		FileName:    fileName,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// AttachFile materializes a file from disk.
func AttachFile(field, path string) (models.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Attachment{}, err
	}
	defer f.Close()
	return Attach(field, filepath.Base(path), "", f)
}

// MarshalPayload encodes v as a queue payload, reporting values JSON cannot
// represent (channels, functions, NaN) as ErrNotSerializable.
func MarshalPayload(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	return b, nil
}
