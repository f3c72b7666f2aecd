package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"med-assist-go/internal/metrics"
	"med-assist-go/internal/model"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/repository"
	"med-assist-go/internal/session"
	"med-assist-go/pkg/tasks"
)

var pdfContent = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

type fakeDocs struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
	next    int
}

func newFakeDocs() *fakeDocs { return &fakeDocs{saved: make(map[string][]byte)} }

func (f *fakeDocs) Save(_ context.Context, sessionID string, file model.FileCandidate, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	key := fmt.Sprintf("documents/%s/%d-%s", sessionID, f.next, file.Name)
	f.saved[key] = data
	return key, nil
}

func (f *fakeDocs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeDocs) PresignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://docs.example/%s?expires=%s", key, expiry), nil
}

type recordingPublisher struct {
	events chan tasks.AnswerCompletedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e tasks.AnswerCompletedEvent) error {
	p.events <- e
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func instant(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newManager(opts session.Options) *session.Manager {
	opts.PipelineOptions = append(opts.PipelineOptions, pipeline.WithWaiter(instant))
	return session.NewManager(repository.NewMemoryChatHistoryRepository(), opts)
}

func fileHeader(t *testing.T, name, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	return form.File["file"][0]
}

func TestSessionServicePreferences(t *testing.T) {
	svc := NewSessionService(newManager(session.Options{}))
	ctx := context.Background()

	state, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if state.Preferences != model.DefaultPreferences() || state.Status.State != model.StateIdle {
		t.Fatalf("unexpected new session state: %+v", state)
	}

	pro := model.UserTypeHealthcareProfessional
	prefs, err := svc.UpdatePreferences(state.ID, model.PreferencePatch{UserType: &pro})
	if err != nil || prefs.UserType != pro {
		t.Fatalf("UpdatePreferences = %+v, %v", prefs, err)
	}
	bad := model.Urgency("Critical")
	if _, err := svc.UpdatePreferences(state.ID, model.PreferencePatch{Urgency: &bad}); !errors.Is(err, model.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
	if got, _ := svc.GetPreferences(state.ID); got != prefs {
		t.Fatalf("GetPreferences = %+v, want %+v", got, prefs)
	}

	if err := svc.Delete(ctx, state.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, state.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUploadServiceDocumentLifecycle(t *testing.T) {
	docs := newFakeDocs()
	manager := newManager(session.Options{OnRemove: NewDocumentCleanup(docs)})
	svc := NewUploadService(manager, docs, metrics.New())
	ctx := context.Background()
	sess, _ := manager.Create()

	first, err := svc.UploadDocument(ctx, sess.ID, fileHeader(t, "labs.pdf", "application/pdf", pdfContent))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if first.Name != "labs.pdf" || first.MimeType != "application/pdf" || first.ObjectKey == "" || first.SizeBytes != int64(len(pdfContent)) {
		t.Fatalf("unexpected uploaded file %+v", first)
	}
	if !bytes.Equal(docs.saved[first.ObjectKey], pdfContent) {
		t.Fatalf("document bytes not stored")
	}

	// 未声明类型时按内容嗅探
	second, err := svc.UploadDocument(ctx, sess.ID, fileHeader(t, "scan.pdf", "", pdfContent))
	if err != nil {
		t.Fatalf("UploadDocument sniffed: %v", err)
	}
	if second.MimeType != "application/pdf" || !bytes.Equal(docs.saved[second.ObjectKey], pdfContent) {
		t.Fatalf("sniffed upload = %+v", second)
	}
	if len(docs.deleted) != 1 || docs.deleted[0] != first.ObjectKey {
		t.Fatalf("replaced document should be deleted, got %v", docs.deleted)
	}

	info, err := svc.GetDocument(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if info.File == nil || info.File.Name != "scan.pdf" || info.Document == nil || info.Document.Size == "" {
		t.Fatalf("unexpected document info %+v", info)
	}
	if want := "https://docs.example/" + second.ObjectKey + "?expires=15m0s"; info.DownloadURL != want {
		t.Fatalf("DownloadURL = %q, want %q", info.DownloadURL, want)
	}

	if _, err := svc.UploadDocument(ctx, sess.ID, fileHeader(t, "notes.txt", "text/plain", []byte("hello"))); !errors.Is(err, session.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	cur, msg := sess.Upload().Snapshot()
	if cur == nil || cur.Name != "scan.pdf" || msg != session.ErrUnsupportedType.Error() {
		t.Fatalf("rejected upload changed slot: %+v %q", cur, msg)
	}
	if info, _ := svc.GetDocument(ctx, sess.ID); info.Error != session.ErrUnsupportedType.Error() || info.File.Name != "scan.pdf" {
		t.Fatalf("GetDocument after rejection = %+v", info)
	}
	if len(docs.saved) != 2 {
		t.Fatalf("rejected upload must not be stored")
	}

	if err := svc.RemoveDocument(ctx, sess.ID); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if cur, _ := sess.Upload().Snapshot(); cur != nil {
		t.Fatalf("slot should be empty after remove")
	}
	if len(docs.deleted) != 2 || docs.deleted[1] != second.ObjectKey {
		t.Fatalf("removed document should be deleted, got %v", docs.deleted)
	}
	if info, _ := svc.GetDocument(ctx, sess.ID); info.File != nil || info.DownloadURL != "" {
		t.Fatalf("empty slot should have no document, got %+v", info)
	}
}

func TestUploadServiceTooLarge(t *testing.T) {
	docs := newFakeDocs()
	rules := session.UploadRules{MaxSizeBytes: 16, AllowedMIMETypes: []string{"application/pdf"}}
	manager := newManager(session.Options{UploadRules: rules})
	svc := NewUploadService(manager, docs, metrics.New())
	sess, _ := manager.Create()

	if _, err := svc.UploadDocument(context.Background(), sess.ID, fileHeader(t, "big.pdf", "application/pdf", pdfContent)); !errors.Is(err, session.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if len(docs.saved) != 0 {
		t.Fatalf("oversized upload must not be stored")
	}

	types := svc.GetSupportedFileTypes()
	if types["maxSizeBytes"] != int64(16) {
		t.Fatalf("unexpected supported types %+v", types)
	}
}

func TestDocumentCleanupOnDelete(t *testing.T) {
	docs := newFakeDocs()
	manager := newManager(session.Options{OnRemove: NewDocumentCleanup(docs)})
	svc := NewUploadService(manager, docs, metrics.New())
	sess, _ := manager.Create()

	f, err := svc.UploadDocument(context.Background(), sess.ID, fileHeader(t, "a.pdf", "application/pdf", pdfContent))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if err := manager.Delete(context.Background(), sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(docs.deleted) != 1 || docs.deleted[0] != f.ObjectKey {
		t.Fatalf("session delete should remove stored document, got %v", docs.deleted)
	}
}

func TestChatServiceAskAndAnswer(t *testing.T) {
	m := metrics.New()
	pub := &recordingPublisher{events: make(chan tasks.AnswerCompletedEvent, 4)}
	manager := newManager(session.Options{Hooks: NewPipelineHooks(m, pub)})
	chat := NewChatService(manager, m)
	conv := NewConversationService(manager)
	ctx := context.Background()
	sess, _ := manager.Create()

	empty, err := chat.CurrentAnswer(ctx, sess.ID)
	if err != nil || empty.Available {
		t.Fatalf("expected no answer yet, got %+v, %v", empty, err)
	}

	high := model.UrgencyHigh
	_, _ = sess.Preferences().Set(model.PreferencePatch{Urgency: &high})
	entry, err := chat.Ask(ctx, sess.ID, "  What causes headaches?  ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if entry.Question != "What causes headaches?" {
		t.Fatalf("question not trimmed: %q", entry.Question)
	}

	select {
	case ev := <-pub.events:
		if ev.SessionID != sess.ID || ev.EntryID != entry.ID || ev.Urgency != model.UrgencyHigh {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("answer event was not published")
	}

	// 之后修改偏好不影响当前回答的紧急标记
	low := model.UrgencyLow
	_, _ = sess.Preferences().Set(model.PreferencePatch{Urgency: &low})
	ans, err := chat.CurrentAnswer(ctx, sess.ID)
	if err != nil {
		t.Fatalf("CurrentAnswer: %v", err)
	}
	if !ans.Available || !ans.UrgentWarning || !ans.Sections.Urgent() || ans.Sections.ContextualReferences != "No additional documents were provided for context." {
		t.Fatalf("unexpected answer view %+v", ans)
	}

	if _, err := chat.Ask(ctx, sess.ID, "   "); !errors.Is(err, pipeline.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}

	hist, err := conv.GetConversationHistory(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetConversationHistory: %v", err)
	}
	if hist.Empty || len(hist.Items) != 1 || !hist.Items[0].HighUrgency || hist.Items[0].TimeAgo != "Just now" {
		t.Fatalf("unexpected history view %+v", hist)
	}

	st, err := chat.Status(sess.ID)
	if err != nil || st.IsProcessing || st.State != "idle" {
		t.Fatalf("Status = %+v, %v", st, err)
	}
}

func TestChatServiceAskAsync(t *testing.T) {
	release := make(chan struct{})
	manager := session.NewManager(repository.NewMemoryChatHistoryRepository(), session.Options{
		PipelineOptions: []pipeline.Option{pipeline.WithWaiter(func(ctx context.Context, _ time.Duration) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})},
	})
	chat := NewChatService(manager, metrics.New())
	sess, _ := manager.Create()

	updates, cancel, err := chat.WatchStatus(sess.ID)
	if err != nil {
		t.Fatalf("WatchStatus: %v", err)
	}
	defer cancel()

	st, err := chat.AskAsync(sess.ID, "q1")
	if err != nil {
		t.Fatalf("AskAsync: %v", err)
	}
	if !st.IsProcessing {
		t.Fatalf("accepted submission should report processing, got %+v", st)
	}
	if _, err := chat.AskAsync(sess.ID, "q2"); !errors.Is(err, pipeline.ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	close(release)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.State == model.StateIdle {
				entries, _ := sess.History(context.Background())
				if len(entries) != 1 || entries[0].Question != "q1" {
					t.Fatalf("expected only q1 in history, got %+v", entries)
				}
				return
			}
		case <-deadline:
			t.Fatalf("pipeline did not return to idle")
		}
	}
}

func TestServicesSessionNotFound(t *testing.T) {
	manager := newManager(session.Options{})
	chat := NewChatService(manager, metrics.New())
	upload := NewUploadService(manager, newFakeDocs(), metrics.New())
	conv := NewConversationService(manager)
	ctx := context.Background()

	if _, err := chat.Ask(ctx, "missing", "q"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := chat.Status("missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("Status: %v", err)
	}
	if err := upload.RemoveDocument(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if _, err := conv.GetConversationHistory(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("GetConversationHistory: %v", err)
	}
}
