package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/fernwood/procure/internal/idgen"
)

// Memory is an in-process blob store for tests and local development.
type Memory struct {
	mu    sync.Mutex
	blobs map[string]*memoryBlob
}

type memoryBlob struct {
	info Info
	data []byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]*memoryBlob)}
}

func (m *Memory) Put(ctx context.Context, accountID, name, contentType string, r io.Reader) (*Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	id, err := idgen.Generate(idgen.PrefixBlob)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b := &memoryBlob{
		info: Info{
			ID:          id,
			AccountID:   accountID,
			Name:        name,
			ContentType: contentType,
			Size:        int64(len(data)),
			CreatedAt:   time.Now().UTC(),
		},
		data: data,
	}
	m.mu.Lock()
	m.blobs[objectKey(accountID, id)] = b
	m.mu.Unlock()

	info := b.info
	return &info, nil
}

func (m *Memory) Get(ctx context.Context, accountID, id string) (*Info, io.ReadCloser, error) {
	m.mu.Lock()
	b, ok := m.blobs[objectKey(accountID, id)]
	m.mu.Unlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	info := b.info
	return &info, io.NopCloser(bytes.NewReader(b.data)), nil
}

func (m *Memory) Delete(ctx context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := objectKey(accountID, id)
	if _, ok := m.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}
