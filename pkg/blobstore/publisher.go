package blobstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/cyclopcam/logs"
)

// Publisher uploads finished output videos into a Storage, under a fixed prefix
type Publisher struct {
	Storage Storage
	Prefix  string // eg "annotated/2024". May be empty.
	log     logs.Log
}

func NewPublisher(log logs.Log, storage Storage, prefix string) *Publisher {
	return &Publisher{
		Storage: storage,
		Prefix:  strings.Trim(prefix, "/"),
		log:     log,
	}
}

// Open creates a Publisher from a target such as "gs://bucket/some/prefix", or a local directory
func Open(ctx context.Context, log logs.Log, target string) (*Publisher, error) {
	if rest, ok := strings.CutPrefix(target, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("No bucket in '%v'", target)
		}
		s, err := NewStorageGCS(ctx, log, bucket)
		if err != nil {
			return nil, fmt.Errorf("Failed to create GCS client: %w", err)
		}
		return NewPublisher(log, s, prefix), nil
	}
	if target == "" {
		return nil, fmt.Errorf("Empty publish target")
	}
	s, err := NewStorageFS(log, target)
	if err != nil {
		return nil, err
	}
	return NewPublisher(log, s, ""), nil
}

// Object name that 'name' is published under
func (p *Publisher) ObjectName(name string) string {
	if p.Prefix == "" {
		return name
	}
	return path.Join(p.Prefix, name)
}

// Publish copies the local file into storage, and returns its location.
// If the stored object is not the same size as the local file, it is deleted.
func (p *Publisher) Publish(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	obj := p.ObjectName(name)
	if err := WriteFile(ctx, p.Storage, obj, f); err != nil {
		return "", fmt.Errorf("Failed to upload %v: %w", obj, err)
	}

	stored, err := p.Storage.ReadFile(ctx, obj)
	if err != nil {
		return "", fmt.Errorf("Failed to verify %v: %w", obj, err)
	}
	stored.Reader.Close()
	if stored.Size != st.Size() {
		if err := p.Storage.DeleteFile(ctx, obj); err != nil {
			p.log.Warnf("Failed to delete incomplete upload %v: %v", obj, err)
		}
		return "", fmt.Errorf("%w: %v is %v bytes, but %v is %v bytes", ErrSizeMismatch, obj, stored.Size, localPath, st.Size())
	}
	return p.Storage.Location(obj), nil
}

// Close releases the storage client, if it has one
func (p *Publisher) Close() error {
	if c, ok := p.Storage.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
