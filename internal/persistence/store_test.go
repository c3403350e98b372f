package persistence

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

var testLayout = Layout{
	GlobalSize:      16,
	PresetSize:      4,
	PresetCount:     3,
	BootFlagOffset:  0,
	ConfiguredValue: 114,
}

type fillDefaults struct {
	global  byte
	presets byte
}

func (d fillDefaults) PopulateGlobal(buf []byte) error {
	for i := range buf {
		buf[i] = d.global
	}

	return nil
}

func (d fillDefaults) PopulatePresets(buf []byte) error {
	for i := range buf {
		buf[i] = d.presets
	}

	return nil
}

type recordingRestarter struct {
	reasons []string
}

func (r *recordingRestarter) RequestRestart(reason string) {
	r.reasons = append(r.reasons, reason)
}

func openTestStore(t *testing.T) (*Store, *RecordRepo, *recordingRestarter) {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRecordRepo(db)
	restarter := &recordingRestarter{}
	store, err := NewStore(repo, testLayout, fillDefaults{global: 0xAA, presets: 0x55}, restarter, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	return store, repo, restarter
}

func TestStoreBootOnEmptyBackendResetsAndRestarts(t *testing.T) {
	ctx := context.Background()
	store, repo, restarter := openTestStore(t)

	err := store.Boot(ctx)
	if !errors.Is(err, ErrRestart) {
		t.Fatalf("expected restart error, got %v", err)
	}
	if len(restarter.reasons) != 1 {
		t.Fatalf("expected one restart request, got %d", len(restarter.reasons))
	}

	global := make([]byte, testLayout.GlobalSize)
	if _, err := repo.Read(ctx, string(RecordGlobal), global); err != nil {
		t.Fatalf("read global: %v", err)
	}
	if global[0] != testLayout.ConfiguredValue || global[1] != 0xAA {
		t.Fatalf("unexpected persisted global: %x", global)
	}

	second, _ := NewStore(repo, testLayout, fillDefaults{}, restarter, nil)
	if err := second.Boot(ctx); err != nil {
		t.Fatalf("second boot: %v", err)
	}
	presets, _ := second.Bytes(RecordPresets)
	if !bytes.Equal(presets, bytes.Repeat([]byte{0x55}, 12)) {
		t.Fatalf("unexpected loaded presets: %x", presets)
	}
}

func TestStoreBootSizeMismatchAlwaysResets(t *testing.T) {
	ctx := context.Background()

	for _, size := range []int{1, testLayout.GlobalSize - 1, testLayout.GlobalSize + 1, 1024} {
		store, repo, restarter := openTestStore(t)
		global := make([]byte, size)
		global[0] = testLayout.ConfiguredValue
		if _, err := repo.Write(ctx, string(RecordGlobal), global); err != nil {
			t.Fatalf("seed global: %v", err)
		}
		if _, err := repo.Write(ctx, string(RecordPresets), make([]byte, 12)); err != nil {
			t.Fatalf("seed presets: %v", err)
		}

		if err := store.Boot(ctx); !errors.Is(err, ErrRestart) {
			t.Fatalf("size %d: expected restart, got %v", size, err)
		}
		if len(restarter.reasons) != 1 {
			t.Fatalf("size %d: expected restart request", size)
		}
		info, err := repo.Stat(ctx, string(RecordGlobal))
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Size != testLayout.GlobalSize {
			t.Fatalf("size %d: expected rewritten record of %d bytes, got %d", size, testLayout.GlobalSize, info.Size)
		}
	}
}

func TestStoreBootWithoutConfiguredFlagResets(t *testing.T) {
	ctx := context.Background()
	store, repo, restarter := openTestStore(t)
	if _, err := repo.Write(ctx, string(RecordGlobal), make([]byte, testLayout.GlobalSize)); err != nil {
		t.Fatalf("seed global: %v", err)
	}
	if _, err := repo.Write(ctx, string(RecordPresets), make([]byte, 12)); err != nil {
		t.Fatalf("seed presets: %v", err)
	}

	if err := store.Boot(ctx); !errors.Is(err, ErrRestart) {
		t.Fatalf("expected restart, got %v", err)
	}
	if len(restarter.reasons) != 1 {
		t.Fatalf("expected restart request")
	}
}

func TestStoreResetAllSettingsPoisonsBootFlag(t *testing.T) {
	ctx := context.Background()
	store, repo, restarter := openTestStore(t)
	_ = store.ResetToFactory(ctx)

	err := store.ResetAllSettings(ctx)
	var restartErr *RestartError
	if !errors.As(err, &restartErr) {
		t.Fatalf("expected *RestartError, got %v", err)
	}
	if len(restarter.reasons) != 2 {
		t.Fatalf("expected two restart requests, got %d", len(restarter.reasons))
	}

	global := make([]byte, testLayout.GlobalSize)
	if _, err := repo.Read(ctx, string(RecordGlobal), global); err != nil {
		t.Fatalf("read global: %v", err)
	}
	if global[0] != 0 {
		t.Fatalf("expected boot flag cleared, got %d", global[0])
	}
	if global[1] != 0xAA {
		t.Fatalf("expected remaining bytes untouched, got %x", global)
	}
}

func TestStoreSaveAndLoadThroughWriter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, _, _ := openTestStore(t)
	writer := NewWriterQueue(nil, 4)
	writer.Start(ctx)
	store.UseWriter(writer)

	want := []byte{114, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if err := store.Stage(RecordGlobal, want); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if n, err := store.Save(ctx, RecordGlobal); err != nil || n != len(want) {
		t.Fatalf("save: n=%d err=%v", n, err)
	}
	if err := store.Stage(RecordGlobal, make([]byte, len(want))); err != nil {
		t.Fatalf("stage zero: %v", err)
	}
	if n, err := store.Load(ctx, RecordGlobal); err != nil || n != len(want) {
		t.Fatalf("load: n=%d err=%v", n, err)
	}
	got, _ := store.Bytes(RecordGlobal)
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
	if err := store.Stage(RecordPresets, []byte{1}); err == nil {
		t.Fatalf("expected stage size error")
	}
}

type shortBackend struct {
	*RecordRepo
}

func (b shortBackend) Write(ctx context.Context, name string, data []byte) (int, error) {
	n, err := b.RecordRepo.Write(ctx, name, data[:len(data)/2])

	return n, err
}

func TestStoreShortWriteIsReportedNotRetried(t *testing.T) {
	ctx := context.Background()
	_, repo, restarter := openTestStore(t)
	store, err := NewStore(shortBackend{repo}, testLayout, fillDefaults{}, restarter, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	n, err := store.Save(ctx, RecordGlobal)
	var short *ShortIOError
	if !errors.As(err, &short) {
		t.Fatalf("expected *ShortIOError, got %v", err)
	}
	if n != testLayout.GlobalSize/2 || short.Expected != testLayout.GlobalSize {
		t.Fatalf("unexpected short write report: n=%d %+v", n, short)
	}
}

func TestNewStoreRequiresCollaborators(t *testing.T) {
	_, repo, restarter := openTestStore(t)
	if _, err := NewStore(repo, testLayout, nil, restarter, nil); err == nil {
		t.Fatalf("expected error without defaults")
	}
	if _, err := NewStore(repo, testLayout, fillDefaults{}, nil, nil); err == nil {
		t.Fatalf("expected error without restarter")
	}
	bad := testLayout
	bad.BootFlagOffset = bad.GlobalSize
	if _, err := NewStore(repo, bad, fillDefaults{}, restarter, nil); err == nil {
		t.Fatalf("expected layout error")
	}
}
