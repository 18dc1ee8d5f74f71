package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gatewatch/internal/server/storage"
	"gatewatch/pkg/model"
)

type fakeStore struct {
	inserted []model.Connection
	insert   func(ctx context.Context, c *model.Connection) error
}

var _ storage.Store = (*fakeStore)(nil)

func (f *fakeStore) Insert(ctx context.Context, c *model.Connection) error {
	if f.insert != nil {
		if err := f.insert(ctx, c); err != nil {
			return err
		}
	}
	f.inserted = append(f.inserted, *c)
	return nil
}

func (f *fakeStore) List(ctx context.Context, _ storage.Filter) ([]model.Connection, error) {
	return nil, nil
}

func (f *fakeStore) TopClients(ctx context.Context, since string, limit int) ([]model.ClientStats, error) {
	return nil, nil
}

func (f *fakeStore) Totals(ctx context.Context) (int, int, error) { return 0, 0, nil }

func (f *fakeStore) TopHosts(ctx context.Context, limit int) (map[string]int, error) {
	return nil, nil
}

func (f *fakeStore) ClientDetail(ctx context.Context, ip string) (*model.IPDetail, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) Close() error { return nil }

type fakeNotifier struct {
	got []*model.Connection
}

func (f *fakeNotifier) Notify(c *model.Connection) { f.got = append(f.got, c) }

func TestRecorder_Record(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "connections.log")
	fs := &fakeStore{}
	fn := &fakeNotifier{}
	rec, err := New(fs, logPath, fn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rec.Close()

	conn := &model.Connection{
		ClientIP:  "203.0.113.7",
		Country:   "DE",
		Method:    "GET",
		Path:      "/login",
		Host:      "svc.example.com",
		UserAgent: "curl/8.0",
	}
	if err := rec.Record(context.Background(), conn); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if conn.Timestamp == "" {
		t.Error("Expected timestamp to be filled in")
	}
	if len(fs.inserted) != 1 {
		t.Fatalf("Expected 1 insert, got %d", len(fs.inserted))
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := fmt.Sprintf("%s | 203.0.113.7 | DE | GET /login | svc.example.com | curl/8.0\n", conn.Timestamp)
	if string(data) != want {
		t.Errorf("Log line mismatch:\n got: %q\nwant: %q", string(data), want)
	}
	if len(fn.got) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(fn.got))
	}
}

func TestRecorder_KeepsExplicitTimestamp(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "connections.log")
	fs := &fakeStore{}
	rec, err := New(fs, logPath, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rec.Close()

	conn := &model.Connection{Timestamp: "2025-03-01 10:00:00", ClientIP: "1.1.1.1"}
	if err := rec.Record(context.Background(), conn); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if fs.inserted[0].Timestamp != "2025-03-01 10:00:00" {
		t.Errorf("Timestamp was rewritten: %s", fs.inserted[0].Timestamp)
	}
}

func TestRecorder_StoreFailureStillAppends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "connections.log")
	boom := errors.New("disk full")
	fs := &fakeStore{insert: func(ctx context.Context, c *model.Connection) error { return boom }}
	fn := &fakeNotifier{}
	rec, err := New(fs, logPath, fn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rec.Close()

	err = rec.Record(context.Background(), &model.Connection{ClientIP: "1.1.1.1"})
	if !errors.Is(err, boom) {
		t.Errorf("Expected store error to surface, got %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "1.1.1.1") {
		t.Errorf("Expected log line despite store failure, got %q", string(data))
	}
	if len(fn.got) != 0 {
		t.Errorf("Expected no notification on failure, got %d", len(fn.got))
	}
}
