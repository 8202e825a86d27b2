package cartsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op names a cart mutation that can be replayed against the server.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// Intent is a cart mutation that was applied locally but has not reached the server yet.
// Key is fixed when the intent is first sent and travels with every replay.
type Intent struct {
	Key       uuid.UUID `json:"key"`
	Op        Op        `json:"op"`
	ProductID int64     `json:"product_id,omitempty"`
	Quantity  int32     `json:"quantity,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}

func (i Intent) String() string {
	switch i.Op {
	case OpClear:
		return string(i.Op)
	case OpRemove:
		return fmt.Sprintf("%s product=%d", i.Op, i.ProductID)
	default:
		return fmt.Sprintf("%s product=%d qty=%d", i.Op, i.ProductID, i.Quantity)
	}
}

// Outbox is an ordered queue of pending intents.
type Outbox interface {
	Append(intent Intent) error
	// Pending returns the queued intents, oldest first.
	Pending() ([]Intent, error)
	// Ack drops the n oldest intents.
	Ack(n int) error
	Len() int
}

// MemoryOutbox keeps intents for the lifetime of the process.
type MemoryOutbox struct {
	mu      sync.Mutex
	intents []Intent
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (o *MemoryOutbox) Append(intent Intent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.intents = append(o.intents, intent)
	return nil
}

func (o *MemoryOutbox) Pending() ([]Intent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.intents), nil
}

func (o *MemoryOutbox) Ack(n int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.intents = ackIntents(o.intents, n)
	return nil
}

func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.intents)
}

// FileOutbox persists intents as a JSON array so they survive restarts.
// Every write replaces the file through a rename, so a crash leaves either the old or the new queue.
type FileOutbox struct {
	mu      sync.Mutex
	path    string
	intents []Intent
}

// NewFileOutbox loads the queue stored at path. A missing file is an empty queue.
func NewFileOutbox(path string) (*FileOutbox, error) {
	o := &FileOutbox{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return o, nil
	case err != nil:
		return nil, fmt.Errorf("read outbox %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &o.intents); err != nil {
			return nil, fmt.Errorf("decode outbox %s: %w", path, err)
		}
	}
	return o, nil
}

func (o *FileOutbox) Append(intent Intent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := append(slices.Clone(o.intents), intent)
	if err := o.save(next); err != nil {
		return err
	}
	o.intents = next
	return nil
}

func (o *FileOutbox) Pending() ([]Intent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.intents), nil
}

func (o *FileOutbox) Ack(n int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := ackIntents(slices.Clone(o.intents), n)
	if err := o.save(next); err != nil {
		return err
	}
	o.intents = next
	return nil
}

func (o *FileOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.intents)
}

func (o *FileOutbox) save(intents []Intent) error {
	if intents == nil {
		intents = []Intent{}
	}
	data, err := json.Marshal(intents)
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(o.path), filepath.Base(o.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create outbox temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write outbox: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync outbox: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close outbox: %w", err)
	}
	if err := os.Rename(tmp.Name(), o.path); err != nil {
		return fmt.Errorf("replace outbox %s: %w", o.path, err)
	}
	return nil
}

func ackIntents(intents []Intent, n int) []Intent {
	if n <= 0 {
		return intents
	}
	if n >= len(intents) {
		return nil
	}
	return slices.Delete(intents, 0, n)
}
