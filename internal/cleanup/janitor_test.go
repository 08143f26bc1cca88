package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/repository"
)

type fakeLister struct {
	candidates []repository.Attachment
	gotCutoff  time.Time
}

func (f *fakeLister) ListCleanupCandidates(_ context.Context, cutoff time.Time) ([]repository.Attachment, error) {
	f.gotCutoff = cutoff
	return f.candidates, nil
}

type fakePurger struct {
	purged int64
	err    error
}

func (f *fakePurger) PurgeDeletedBefore(_ context.Context, _ time.Time) (int64, error) {
	return f.purged, f.err
}

type fakeDeleter struct {
	gotKeys []string
	err     error
}

func (f *fakeDeleter) DeleteByKeys(_ context.Context, keys []string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.gotKeys = append(f.gotKeys, keys...)
	return len(keys), nil
}

func newTestJanitor(lister *fakeLister, purger *fakePurger, deleter *fakeDeleter) *Janitor {
	return NewJanitor(Config{
		Attachments: lister,
		Messages:    purger,
		Objects:     deleter,
		Retention:   30 * 24 * time.Hour,
		Interval:    time.Hour,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRunOnce_DeletesObjectsThenPurges(t *testing.T) {
	lister := &fakeLister{candidates: []repository.Attachment{
		{ID: uuid.New(), StorageKey: "attachments/m1/1-a.pdf"},
		{ID: uuid.New(), StorageKey: "attachments/m2/2-b.png"},
	}}
	purger := &fakePurger{purged: 2}
	deleter := &fakeDeleter{}

	j := newTestJanitor(lister, purger, deleter)
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if len(deleter.gotKeys) != 2 {
		t.Fatalf("deleted %d keys, want 2", len(deleter.gotKeys))
	}
	if deleter.gotKeys[0] != "attachments/m1/1-a.pdf" {
		t.Errorf("first key = %q", deleter.gotKeys[0])
	}

	wantCutoff := time.Now().Add(-30 * 24 * time.Hour)
	if diff := lister.gotCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", lister.gotCutoff, wantCutoff)
	}
}

func TestRunOnce_NoCandidates(t *testing.T) {
	j := newTestJanitor(&fakeLister{}, &fakePurger{}, &fakeDeleter{})
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
}

func TestRunOnce_ObjectDeleteFailureStopsPurge(t *testing.T) {
	lister := &fakeLister{candidates: []repository.Attachment{
		{ID: uuid.New(), StorageKey: "attachments/m1/1-a.pdf"},
	}}
	deleter := &fakeDeleter{err: errors.New("bucket unavailable")}
	purger := &fakePurger{}

	j := newTestJanitor(lister, purger, deleter)
	if err := j.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when object deletion fails")
	}
}

func TestStartStop(t *testing.T) {
	j := newTestJanitor(&fakeLister{}, &fakePurger{}, &fakeDeleter{})

	j.Start(context.Background())
	if !func() bool { j.mu.Lock(); defer j.mu.Unlock(); return j.running }() {
		t.Error("janitor should report running after Start")
	}

	j.Stop()
}
