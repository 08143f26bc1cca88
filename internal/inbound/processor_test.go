package inbound

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/stackmail/mailbox/backend/internal/mailparse"
	"github.com/stackmail/mailbox/backend/internal/repository"
)

type fakeUserDirectory struct {
	users map[string]*repository.User
}

func (f *fakeUserDirectory) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

type fakeMessageStore struct {
	created []*repository.Message
	err     error
}

func (f *fakeMessageStore) Create(_ context.Context, msg *repository.Message) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, msg)
	return nil
}

type fakeAttachmentStore struct {
	created []repository.Attachment
}

func (f *fakeAttachmentStore) CreateBatch(_ context.Context, rows []repository.Attachment) error {
	f.created = append(f.created, rows...)
	return nil
}

type fakeObjectStore struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeObjectStore) Put(_ context.Context, key string, content []byte, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[key] = content
	return nil
}

type testHarness struct {
	processor   *Processor
	users       *fakeUserDirectory
	messages    *fakeMessageStore
	attachments *fakeAttachmentStore
	objects     *fakeObjectStore
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := &fakeUserDirectory{users: map[string]*repository.User{
		"alice@stackmail.dev": {ID: uuid.New(), Email: "alice@stackmail.dev", Status: repository.UserStatusActive},
	}}
	messages := &fakeMessageStore{}
	attachments := &fakeAttachmentStore{}
	objects := &fakeObjectStore{}

	processor := NewProcessor(Config{
		Parser:            mailparse.NewLineParser(logger),
		Users:             users,
		Messages:          messages,
		Attachments:       attachments,
		Objects:           objects,
		MaxAttachmentSize: 1024,
		Logger:            logger,
	})

	return &testHarness{
		processor:   processor,
		users:       users,
		messages:    messages,
		attachments: attachments,
		objects:     objects,
	}
}

func plainEnvelope() *Envelope {
	raw := strings.Join([]string{
		"From: bob@example.com",
		"To: alice@stackmail.dev",
		"Subject: Lunch plans",
		"Message-ID: <abc123@example.com>",
		"",
		"Shall we meet at noon?",
	}, "\n")
	return &Envelope{
		From: "bob@example.com",
		To:   "alice@stackmail.dev",
		Raw:  raw,
	}
}

func TestProcess_StoresMessage(t *testing.T) {
	h := newHarness(t)

	msg, err := h.processor.Process(context.Background(), plainEnvelope())
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(h.messages.created) != 1 {
		t.Fatalf("created %d messages, want 1", len(h.messages.created))
	}

	if msg.Subject != "Lunch plans" {
		t.Errorf("subject = %q, want %q", msg.Subject, "Lunch plans")
	}
	if msg.MessageID != "abc123@example.com" {
		t.Errorf("message_id = %q, want header value without brackets", msg.MessageID)
	}
	if msg.Sender != "bob@example.com" {
		t.Errorf("sender = %q, want envelope sender", msg.Sender)
	}
	if msg.Folder != repository.FolderInbox {
		t.Errorf("folder = %q, want inbox", msg.Folder)
	}
	if msg.TextBody != "Shall we meet at noon?" {
		t.Errorf("text body = %q", msg.TextBody)
	}
	if msg.IsRead {
		t.Error("inbound messages start unread")
	}
}

func TestProcess_UnknownRecipient(t *testing.T) {
	h := newHarness(t)

	env := plainEnvelope()
	env.To = "nobody@stackmail.dev"

	_, err := h.processor.Process(context.Background(), env)
	if !errors.Is(err, ErrRecipientUnknown) {
		t.Errorf("err = %v, want ErrRecipientUnknown", err)
	}
	if len(h.messages.created) != 0 {
		t.Error("no message should be stored for unknown recipients")
	}
}

func TestProcess_GeneratesMessageIDWhenMissing(t *testing.T) {
	h := newHarness(t)

	env := plainEnvelope()
	env.Raw = strings.Join([]string{
		"From: bob@example.com",
		"Subject: no id",
		"",
		"body",
	}, "\n")

	msg, err := h.processor.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if msg.MessageID == "" {
		t.Error("expected a generated message_id")
	}
}

func envelopeWithAttachment(filename, contentType string, content []byte) *Envelope {
	encoded := base64.StdEncoding.EncodeToString(content)
	raw := strings.Join([]string{
		"From: bob@example.com",
		"Subject: files",
		"",
		"See attached.",
		"--boundary",
		`Content-Disposition: attachment; filename="` + filename + `"`,
		"Content-Type: " + contentType,
		"Content-Transfer-Encoding: base64",
		"",
		encoded,
		"--boundary--",
	}, "\n")
	return &Envelope{From: "bob@example.com", To: "alice@stackmail.dev", Raw: raw}
}

func TestProcess_StoresAttachment(t *testing.T) {
	h := newHarness(t)

	content := []byte("%PDF-1.4 fake")
	_, err := h.processor.Process(context.Background(), envelopeWithAttachment("report.pdf", "application/pdf", content))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(h.attachments.created) != 1 {
		t.Fatalf("created %d attachment rows, want 1", len(h.attachments.created))
	}

	row := h.attachments.created[0]
	if row.Filename != "report.pdf" {
		t.Errorf("filename = %q, want report.pdf", row.Filename)
	}
	if row.SizeBytes != int64(len(content)) {
		t.Errorf("size = %d, want %d", row.SizeBytes, len(content))
	}

	uploaded, ok := h.objects.uploads[row.StorageKey]
	if !ok {
		t.Fatalf("no upload recorded for key %q", row.StorageKey)
	}
	if string(uploaded) != string(content) {
		t.Error("uploaded content differs from decoded attachment")
	}
}

func TestProcess_SkipsDisallowedContentType(t *testing.T) {
	h := newHarness(t)

	env := envelopeWithAttachment("setup.exe", "application/x-msdownload", []byte("MZ"))
	_, err := h.processor.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(h.attachments.created) != 0 {
		t.Error("disallowed content type should not be stored")
	}
	if len(h.objects.uploads) != 0 {
		t.Error("disallowed content type should not be uploaded")
	}
	if len(h.messages.created) != 1 {
		t.Error("message itself should still be stored")
	}
}

func TestProcess_ContentTypeCheckIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)

	env := envelopeWithAttachment("photo.png", "Image/PNG", []byte("pngdata"))
	_, err := h.processor.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(h.attachments.created) != 1 {
		t.Fatalf("created %d attachment rows, want 1", len(h.attachments.created))
	}
}

func TestProcess_SkipsOversizedAttachment(t *testing.T) {
	h := newHarness(t)

	big := make([]byte, 2048)
	_, err := h.processor.Process(context.Background(), envelopeWithAttachment("big.pdf", "application/pdf", big))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(h.attachments.created) != 0 {
		t.Error("oversized attachment should not be stored")
	}
}

func TestProcess_UploadFailureSkipsMetadata(t *testing.T) {
	h := newHarness(t)
	h.objects.err = errors.New("bucket unavailable")

	_, err := h.processor.Process(context.Background(), envelopeWithAttachment("report.pdf", "application/pdf", []byte("data")))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(h.attachments.created) != 0 {
		t.Error("metadata should not be written when upload fails")
	}
}
