package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"med-assist-go/internal/metrics"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/repository"
	"med-assist-go/internal/service"
	"med-assist-go/internal/session"
	"med-assist-go/pkg/kafka"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func instant(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestRouter(t *testing.T, waiter func(context.Context, time.Duration) error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	docs := repository.NewDiscardDocumentRepository()
	manager := session.NewManager(repository.NewMemoryChatHistoryRepository(), session.Options{
		Hooks:           service.NewPipelineHooks(m, kafka.NewNoopPublisher()),
		PipelineOptions: []pipeline.Option{pipeline.WithWaiter(waiter)},
		OnRemove:        service.NewDocumentCleanup(docs),
	})
	m.TrackSessions(manager.Len)

	return NewRouter(Handlers{
		Session:      NewSessionHandler(service.NewSessionService(manager)),
		Upload:       NewUploadHandler(service.NewUploadService(manager, docs, m)),
		Chat:         NewChatHandler(service.NewChatService(manager, m)),
		Conversation: NewConversationHandler(service.NewConversationService(manager)),
		Meta:         NewMetaHandler(),
		Metrics:      m.Handler(),
	})
}

func do(t *testing.T, r http.Handler, method, path, contentType string, body io.Reader) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	return do(t, r, method, path, "application/json", reader)
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	rec, env := doJSON(t, r, http.MethodPost, "/api/v1/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body.String())
	}
	var state struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &state); err != nil || state.ID == "" {
		t.Fatalf("bad session payload %s: %v", env.Data, err)
	}
	return state.ID
}

func multipartBody(t *testing.T, name, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	_, _ = part.Write(content)
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func TestQuestionFlow(t *testing.T) {
	r := newTestRouter(t, instant)
	id := createSession(t, r)
	base := "/api/v1/sessions/" + id

	rec, env := doJSON(t, r, http.MethodPut, base+"/preferences", `{"urgency":"High"}`)
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"urgency":"High"`) || !strings.Contains(string(env.Data), `"userType":"Patient"`) {
		t.Fatalf("update preferences: %d %s", rec.Code, rec.Body.String())
	}

	body, ct := multipartBody(t, "labs.pdf", "application/pdf", []byte("%PDF-1.4\n%%EOF\n"))
	rec, env = do(t, r, http.MethodPost, base+"/document", ct, body)
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"name":"labs.pdf"`) {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	rec, env = doJSON(t, r, http.MethodGet, base+"/document", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"name":"labs.pdf"`) || strings.Contains(string(env.Data), "downloadUrl") {
		t.Fatalf("get document: %d %s", rec.Code, rec.Body.String())
	}

	rec, env = doJSON(t, r, http.MethodPost, base+"/questions", `{"question":"  What causes headaches?  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ask: %d %s", rec.Code, rec.Body.String())
	}
	var asked struct {
		Entry struct {
			Question string `json:"question"`
			Document *struct {
				Name string `json:"name"`
			} `json:"document"`
		} `json:"entry"`
		Answer struct {
			Available     bool `json:"available"`
			UrgentWarning bool `json:"urgentWarning"`
			Sections      struct {
				ContextualReferences string   `json:"contextualReferences"`
				FollowupQuestions    []string `json:"followupQuestions"`
				ImportantNote        string   `json:"importantNote"`
			} `json:"sections"`
		} `json:"answer"`
	}
	if err := json.Unmarshal(env.Data, &asked); err != nil {
		t.Fatalf("decode ask: %v", err)
	}
	if asked.Entry.Question != "What causes headaches?" || asked.Entry.Document == nil || asked.Entry.Document.Name != "labs.pdf" {
		t.Fatalf("unexpected entry %+v", asked.Entry)
	}
	if !asked.Answer.Available || !asked.Answer.UrgentWarning || len(asked.Answer.Sections.FollowupQuestions) != 3 ||
		!strings.Contains(asked.Answer.Sections.ContextualReferences, "labs.pdf") || !strings.HasPrefix(asked.Answer.Sections.ImportantNote, "⚠️") {
		t.Fatalf("unexpected answer %+v", asked.Answer)
	}

	rec, env = doJSON(t, r, http.MethodGet, base+"/history", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"highUrgency":true`) || !strings.Contains(string(env.Data), `"timeAgo":"Just now"`) {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}

	rec, env = doJSON(t, r, http.MethodGet, base, "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"historySize":1`) {
		t.Fatalf("get session: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, r, http.MethodGet, base+"/answer", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"progress":0`) {
		t.Fatalf("answer: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, r, http.MethodDelete, base+"/document", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove document: %d", rec.Code)
	}

	rec, _ = doJSON(t, r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `medassist_submissions_total{result="completed"} 1`) {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t, instant)
	id := createSession(t, r)
	base := "/api/v1/sessions/" + id

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        func() io.Reader
		wantStatus  int
		wantMessage string
	}{
		{"unknown session", http.MethodGet, "/api/v1/sessions/nope", "", nil, http.StatusNotFound, "session not found"},
		{"bad preference", http.MethodPut, base + "/preferences", "application/json", func() io.Reader { return strings.NewReader(`{"userType":"Doctor"}`) }, http.StatusBadRequest, ""},
		{"malformed json", http.MethodPut, base + "/preferences", "application/json", func() io.Reader { return strings.NewReader(`{`) }, http.StatusBadRequest, "无效的请求负载"},
		{"empty question", http.MethodPost, base + "/questions", "application/json", func() io.Reader { return strings.NewReader(`{"question":"   "}`) }, http.StatusBadRequest, "question is empty"},
		{"bad wait", http.MethodPost, base + "/questions?wait=maybe", "application/json", func() io.Reader { return strings.NewReader(`{"question":"q"}`) }, http.StatusBadRequest, "无效的 wait 参数"},
		{"missing file", http.MethodPost, base + "/document", "application/json", func() io.Reader { return strings.NewReader(`{}`) }, http.StatusBadRequest, "未能获取上传的文件"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != nil {
				body = tt.body()
			}
			rec, env := do(t, r, tt.method, tt.path, tt.contentType, body)
			if rec.Code != tt.wantStatus || env.Code != tt.wantStatus {
				t.Fatalf("status = %d (envelope %d), want %d: %s", rec.Code, env.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantMessage != "" && env.Message != tt.wantMessage {
				t.Fatalf("message = %q, want %q", env.Message, tt.wantMessage)
			}
		})
	}

	body, ct := multipartBody(t, "photo.png", "image/png", []byte("\x89PNG\r\n\x1a\n"))
	rec, env := do(t, r, http.MethodPost, base+"/document", ct, body)
	if rec.Code != http.StatusUnsupportedMediaType || env.Message != "Only PDF files are supported" {
		t.Fatalf("png upload: %d %s", rec.Code, rec.Body.String())
	}
	rec, env = doJSON(t, r, http.MethodGet, base, "")
	if !strings.Contains(string(env.Data), `"uploadError":"Only PDF files are supported"`) {
		t.Fatalf("upload error should be visible in session state: %s", rec.Body.String())
	}
}

func TestAskSurvivesClientDisconnect(t *testing.T) {
	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	r := newTestRouter(t, func(ctx context.Context, _ time.Duration) error {
		entered <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	id := createSession(t, r)
	base := "/api/v1/sessions/" + id

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, base+"/questions", strings.NewReader(`{"question":"q1"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	served := make(chan struct{})
	go func() {
		r.ServeHTTP(rec, req)
		close(served)
	}()

	<-entered
	cancel()
	close(release)

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatalf("ask did not return after release")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("ask after disconnect: %d %s", rec.Code, rec.Body.String())
	}
	_, env := doJSON(t, r, http.MethodGet, base+"/history", "")
	if strings.Count(string(env.Data), `"question":"q1"`) != 1 {
		t.Fatalf("accepted question should reach history: %s", env.Data)
	}
}

func TestAskAsyncAndStatusStream(t *testing.T) {
	release := make(chan struct{})
	r := newTestRouter(t, func(ctx context.Context, _ time.Duration) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	id := createSession(t, r)
	base := "/api/v1/sessions/" + id

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/status/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	type progress struct {
		State        string `json:"state"`
		IsProcessing bool   `json:"isProcessing"`
		StatusText   string `json:"statusText"`
		Progress     int    `json:"progress"`
	}
	read := func() progress {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var p progress
		if err := conn.ReadJSON(&p); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return p
	}
	if first := read(); first.State != "idle" {
		t.Fatalf("first frame should be current status, got %+v", first)
	}

	rec, env := doJSON(t, r, http.MethodPost, base+"/questions?wait=false", `{"question":"q1"}`)
	if rec.Code != http.StatusAccepted || !strings.Contains(string(env.Data), `"isProcessing":true`) {
		t.Fatalf("async ask: %d %s", rec.Code, rec.Body.String())
	}
	rec, env = doJSON(t, r, http.MethodPost, base+"/questions?wait=false", `{"question":"q2"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-entrant ask should conflict, got %d %s", rec.Code, rec.Body.String())
	}

	if p := read(); p.State != "validating" {
		t.Fatalf("expected validating, got %+v", p)
	}
	if p := read(); p.State != "staged" || p.StatusText != "Processing your document…" {
		t.Fatalf("expected first stage, got %+v", p)
	}
	close(release)

	var states []string
	for {
		p := read()
		states = append(states, p.State)
		if p.State == "idle" {
			break
		}
	}
	if strings.Join(states, ",") != "staged,staged,completed,idle" {
		t.Fatalf("unexpected remaining states %v", states)
	}

	_, env = doJSON(t, r, http.MethodGet, base+"/history", "")
	if strings.Count(string(env.Data), `"question":"q1"`) != 1 || strings.Contains(string(env.Data), `"question":"q2"`) {
		t.Fatalf("history should contain only q1: %s", env.Data)
	}
}

func TestMetaEndpoints(t *testing.T) {
	r := newTestRouter(t, instant)

	rec, env := doJSON(t, r, http.MethodGet, "/api/v1/meta/preferences", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), "Clinical-level information") {
		t.Fatalf("preferences catalog: %d %s", rec.Code, rec.Body.String())
	}
	rec, env = doJSON(t, r, http.MethodGet, "/api/v1/meta/disclaimer", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), "Cannot diagnose medical conditions") {
		t.Fatalf("disclaimer: %d %s", rec.Code, rec.Body.String())
	}
	rec, env = doJSON(t, r, http.MethodGet, "/api/v1/upload/supported-types", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), "application/pdf") || !strings.Contains(string(env.Data), "104857600") {
		t.Fatalf("supported types: %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = doJSON(t, r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	r := newTestRouter(t, instant)
	id := createSession(t, r)

	rec, _ := doJSON(t, r, http.MethodDelete, "/api/v1/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec, _ = doJSON(t, r, http.MethodGet, "/api/v1/sessions/"+id+"/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted session should 404, got %d", rec.Code)
	}
}
