package sendqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/provider"
	"github.com/stackmail/mailbox/backend/internal/repository"
)

// fakeQueue records state transitions for claimed items
type fakeQueue struct {
	pending []repository.SendQueueItem

	sent    []uuid.UUID
	retried map[uuid.UUID]int
	failed  map[uuid.UUID]int
	errMsgs map[uuid.UUID]string
}

func newFakeQueue(items ...repository.SendQueueItem) *fakeQueue {
	return &fakeQueue{
		pending: items,
		retried: make(map[uuid.UUID]int),
		failed:  make(map[uuid.UUID]int),
		errMsgs: make(map[uuid.UUID]string),
	}
}

func (f *fakeQueue) ClaimPending(_ context.Context, limit int) ([]repository.SendQueueItem, error) {
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	claimed := f.pending[:limit]
	f.pending = f.pending[limit:]
	return claimed, nil
}

func (f *fakeQueue) MarkSent(_ context.Context, id uuid.UUID) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeQueue) MarkRetry(_ context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	f.retried[id] = retryCount
	f.errMsgs[id] = errMsg
	return nil
}

func (f *fakeQueue) MarkFailed(_ context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	f.failed[id] = retryCount
	f.errMsgs[id] = errMsg
	return nil
}

// fakeProvider fails for recipients in failFor
type fakeProvider struct {
	failFor map[string]error
	sent    []*provider.Outbound
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Send(_ context.Context, msg *provider.Outbound) error {
	if err, ok := f.failFor[msg.To]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeMessageCreator struct {
	created []*repository.Message
}

func (f *fakeMessageCreator) Create(_ context.Context, msg *repository.Message) error {
	f.created = append(f.created, msg)
	return nil
}

func queueItem(to string, retryCount int) repository.SendQueueItem {
	return repository.SendQueueItem{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		ToAddrs:    []string{to},
		Subject:    "Hello",
		TextBody:   "plain body",
		HTMLBody:   "<p>html body</p>",
		Status:     repository.SendStatusPending,
		RetryCount: retryCount,
	}
}

func newTestProcessor(queue *fakeQueue, prov provider.Provider, messages *fakeMessageCreator) *Processor {
	return NewProcessor(Config{
		Queue:       queue,
		Messages:    messages,
		Provider:    prov,
		FromAddress: "noreply@stackmail.dev",
		FromName:    "StackMail",
		BatchSize:   10,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestProcessBatch_SuccessRecordsSentMessage(t *testing.T) {
	item := queueItem("alice@example.com", 0)
	queue := newFakeQueue(item)
	prov := &fakeProvider{}
	messages := &fakeMessageCreator{}

	p := newTestProcessor(queue, prov, messages)
	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}

	if len(queue.sent) != 1 || queue.sent[0] != item.ID {
		t.Errorf("item should be marked sent")
	}
	if len(messages.created) != 1 {
		t.Fatalf("created %d sent records, want 1", len(messages.created))
	}

	rec := messages.created[0]
	if rec.Folder != repository.FolderSent {
		t.Errorf("folder = %q, want sent", rec.Folder)
	}
	if !rec.IsRead {
		t.Error("sent records start read")
	}
	if rec.Sender != "noreply@stackmail.dev" {
		t.Errorf("sender = %q, want configured from address", rec.Sender)
	}
	if rec.SizeBytes != int64(len(item.TextBody)+len(item.HTMLBody)) {
		t.Errorf("size = %d, want %d", rec.SizeBytes, len(item.TextBody)+len(item.HTMLBody))
	}
	if rec.UserID != item.UserID {
		t.Error("sent record should belong to the queueing user")
	}
}

func TestProcessBatch_FirstFailureRequeues(t *testing.T) {
	item := queueItem("bounce@example.com", 0)
	queue := newFakeQueue(item)
	prov := &fakeProvider{failFor: map[string]error{
		"bounce@example.com": errors.New("mailbox full"),
	}}
	messages := &fakeMessageCreator{}

	p := newTestProcessor(queue, prov, messages)
	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}

	if count, ok := queue.retried[item.ID]; !ok || count != 1 {
		t.Errorf("retried count = %d (present=%v), want 1", count, ok)
	}
	if len(queue.failed) != 0 {
		t.Error("item should not be failed on first attempt")
	}
	if queue.errMsgs[item.ID] != "mailbox full" {
		t.Errorf("error message = %q, want provider error", queue.errMsgs[item.ID])
	}
	if len(messages.created) != 0 {
		t.Error("no sent record on failure")
	}
}

func TestProcessBatch_ThirdFailureIsTerminal(t *testing.T) {
	item := queueItem("bounce@example.com", 2)
	queue := newFakeQueue(item)
	prov := &fakeProvider{failFor: map[string]error{
		"bounce@example.com": errors.New("hard bounce"),
	}}

	p := newTestProcessor(queue, prov, &fakeMessageCreator{})
	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}

	if count, ok := queue.failed[item.ID]; !ok || count != 3 {
		t.Errorf("failed count = %d (present=%v), want 3", count, ok)
	}
	if len(queue.retried) != 0 {
		t.Error("item should not be requeued on its final attempt")
	}
	if queue.errMsgs[item.ID] != "hard bounce" {
		t.Errorf("error message = %q, want provider error", queue.errMsgs[item.ID])
	}
}

func TestProcessBatch_FailureDoesNotBlockBatch(t *testing.T) {
	bad := queueItem("bounce@example.com", 0)
	good := queueItem("alice@example.com", 0)
	queue := newFakeQueue(bad, good)
	prov := &fakeProvider{failFor: map[string]error{
		"bounce@example.com": errors.New("refused"),
	}}
	messages := &fakeMessageCreator{}

	p := newTestProcessor(queue, prov, messages)
	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}

	if len(queue.sent) != 1 || queue.sent[0] != good.ID {
		t.Error("good item should still be delivered")
	}
	if _, ok := queue.retried[bad.ID]; !ok {
		t.Error("bad item should be requeued")
	}
}

func TestProcessBatch_EmptyQueue(t *testing.T) {
	p := newTestProcessor(newFakeQueue(), &fakeProvider{}, &fakeMessageCreator{})
	if err := p.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch returned error: %v", err)
	}
}

func TestToOutbound_CarriesAttachments(t *testing.T) {
	item := queueItem("alice@example.com", 0)
	item.CcAddrs = []string{"bob@example.com"}
	item.Attachments = []repository.QueuedAttachment{
		{Filename: "a.txt", ContentType: "text/plain", Content: "aGVsbG8="},
	}

	p := newTestProcessor(newFakeQueue(), &fakeProvider{}, &fakeMessageCreator{})
	out := p.toOutbound(&item)

	if out.To != "alice@example.com" {
		t.Errorf("to = %q", out.To)
	}
	if len(out.Cc) != 1 || out.Cc[0] != "bob@example.com" {
		t.Errorf("cc = %v", out.Cc)
	}
	if len(out.Attachments) != 1 || out.Attachments[0].Content != "aGVsbG8=" {
		t.Errorf("attachments = %v", out.Attachments)
	}
}
