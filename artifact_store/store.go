package artifactstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Download when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// A Store is the durable artifact backend shared by the coordinator and the
// workers. Keys are slash-separated paths relative to the store's bucket.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

func UploadJSON(ctx context.Context, s Store, key string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s failed: %w", key, err)
	}
	return s.Upload(ctx, key, bytes.NewReader(buf))
}

func DownloadJSON(ctx context.Context, s Store, key string, v any) error {
	buf, err := s.Download(ctx, key)
	if err != nil {
		return err
	}
	err = json.Unmarshal(buf, v)
	if err != nil {
		return fmt.Errorf("unmarshalling %s failed: %w", key, err)
	}
	return nil
}
