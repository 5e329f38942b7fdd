package backup

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mvale/housetab/internal/database"
	"github.com/mvale/housetab/internal/model"
	"github.com/mvale/housetab/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	delErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testManager builds a manager over a migrated in-memory database.
func testManager(t *testing.T, cfg Config) (*Manager, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(cfg, db, store.NewBackupStore(db), store.NewSettingsStore(db), testLogger(), nil)
	return m, db
}

func enabledConfig() Config {
	return Config{
		S3:            S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
		KeyPrefix:     "backups",
		ScheduleHour:  3,
		RetentionDays: 30,
	}
}

func TestManagerStateLifecycle(t *testing.T) {
	// Without S3 config -> disabled
	m := NewManager(Config{}, nil, nil, nil, testLogger(), nil)
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if m.Enabled() {
		t.Error("manager should be disabled without S3 config")
	}

	// With S3 config -> idle
	m2 := NewManager(enabledConfig(), nil, nil, nil, testLogger(), nil)
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}
	if !m2.Enabled() {
		t.Error("manager should be enabled with S3 config")
	}
}

func TestManagerStatusCallback(t *testing.T) {
	var received []Status
	var mu sync.Mutex
	cb := func(s Status) {
		mu.Lock()
		received = append(received, s)
		mu.Unlock()
	}

	m := NewManager(enabledConfig(), nil, nil, nil, testLogger(), cb)

	m.setStatus(Status{State: StateRunning, InProgress: true})
	m.setStatus(Status{State: StateIdle})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received %d callbacks, want 2", len(received))
	}
	if received[0].State != StateRunning {
		t.Errorf("first callback state = %q, want %q", received[0].State, StateRunning)
	}
	if received[1].State != StateIdle {
		t.Errorf("second callback state = %q, want %q", received[1].State, StateIdle)
	}
}

func TestManagerStopSafety(t *testing.T) {
	m := NewManager(enabledConfig(), nil, nil, nil, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, testLogger(), nil)

	ctx := context.Background()
	m.Start(ctx) // should be a no-op for disabled state

	// Stop should not block
	m.Stop()
}

func TestEnsureSaltPersists(t *testing.T) {
	m, _ := testManager(t, enabledConfig())

	salt1, err := m.EnsureSalt()
	if err != nil {
		t.Fatalf("ensure salt: %v", err)
	}
	if len(salt1) != saltSize {
		t.Fatalf("salt length = %d, want %d", len(salt1), saltSize)
	}

	salt2, err := m.EnsureSalt()
	if err != nil {
		t.Fatalf("ensure salt again: %v", err)
	}
	if !bytes.Equal(salt1, salt2) {
		t.Error("second EnsureSalt should return the stored salt")
	}
}

func TestStartPrimesCredentials(t *testing.T) {
	cfg := enabledConfig()
	cfg.Passphrase = "nightly-secret"
	m, _ := testManager(t, cfg)

	if m.HasCachedKey() {
		t.Fatal("expected no cached key before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	defer func() {
		cancel()
		m.Stop()
	}()

	if !m.HasCachedKey() {
		t.Error("expected cached key after start with configured passphrase")
	}
}

func TestRunNowUploadsEncryptedBackup(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "housetab.db")
	original := []byte("pretend this is a sqlite file")
	if err := os.WriteFile(dbFile, original, 0600); err != nil {
		t.Fatalf("write db file: %v", err)
	}

	cfg := enabledConfig()
	cfg.DBPath = dbFile
	m, db := testManager(t, cfg)

	mock := newMockS3()
	m.client = mock

	id, err := m.RunNow(context.Background(), "my-passphrase")
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	record, err := store.NewBackupStore(db).GetByID(id)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record == nil {
		t.Fatal("backup record not found")
	}
	if record.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", record.Status, model.BackupStatusCompleted)
	}
	if record.SizeBytes == 0 {
		t.Error("size should be recorded")
	}
	if !strings.HasPrefix(record.S3Key, "backups/backup-") {
		t.Errorf("s3 key = %q, want backups/backup-* prefix", record.S3Key)
	}

	encrypted, ok := mock.objects[record.S3Key]
	if !ok {
		t.Fatalf("object %q not uploaded", record.S3Key)
	}
	decrypted, err := Decrypt(encrypted, "my-passphrase")
	if err != nil {
		t.Fatalf("decrypt uploaded object: %v", err)
	}
	if !bytes.Equal(decrypted, original) {
		t.Error("uploaded object should decrypt back to the database content")
	}

	if !m.HasCachedKey() {
		t.Error("successful manual backup should cache the passphrase")
	}
	status := m.Status()
	if status.State != StateIdle || status.LastBackup == nil {
		t.Errorf("status after backup = %+v, want idle with last_backup set", status)
	}
}

func TestRunNowWhenDisabled(t *testing.T) {
	m, _ := testManager(t, Config{})

	if _, err := m.RunNow(context.Background(), "pass"); err == nil {
		t.Fatal("expected error when backups are not configured")
	}
}

func TestCleanupRemovesOldBackups(t *testing.T) {
	m, db := testManager(t, enabledConfig())

	mock := newMockS3()
	m.client = mock

	backups := store.NewBackupStore(db)

	oldRec, err := backups.Create("old.db.enc", "backups/old.db.enc")
	if err != nil {
		t.Fatalf("create old record: %v", err)
	}
	backups.UpdateCompleted(oldRec.ID, 100)
	if _, err := db.Exec(
		`UPDATE backups SET created_at = ? WHERE id = ?`,
		time.Now().UTC().AddDate(0, 0, -40), oldRec.ID,
	); err != nil {
		t.Fatalf("age old record: %v", err)
	}

	newRec, err := backups.Create("new.db.enc", "backups/new.db.enc")
	if err != nil {
		t.Fatalf("create new record: %v", err)
	}
	backups.UpdateCompleted(newRec.ID, 100)

	mock.objects["backups/old.db.enc"] = []byte("old")
	mock.objects["backups/new.db.enc"] = []byte("new")

	if err := m.Cleanup(context.Background(), 30); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, ok := mock.objects["backups/old.db.enc"]; ok {
		t.Error("old object should have been deleted")
	}
	if _, ok := mock.objects["backups/new.db.enc"]; !ok {
		t.Error("new object should have been kept")
	}

	got, err := backups.GetByID(oldRec.ID)
	if err != nil {
		t.Fatalf("get old record: %v", err)
	}
	if got != nil {
		t.Error("old record should have been deleted")
	}
}
