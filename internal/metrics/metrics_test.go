package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"med-assist-go/internal/model"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSubmissionResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultCompleted},
		{pipeline.ErrEmptyQuestion, ResultEmpty},
		{fmt.Errorf("wrapped: %w", pipeline.ErrSubmissionInFlight), ResultInFlight},
		{fmt.Errorf("stage document interrupted: %w", context.Canceled), ResultCancelled},
		{errors.New("boom"), ResultFailed},
	}
	for _, tt := range tests {
		if got := SubmissionResult(tt.err); got != tt.want {
			t.Fatalf("SubmissionResult(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestUploadResult(t *testing.T) {
	if UploadResult(nil) != "accepted" || UploadResult(session.ErrTooLarge) != "too_large" || UploadResult(session.ErrUnsupportedType) != "unsupported_type" {
		t.Fatalf("unexpected upload result labels")
	}
}

func TestHooksRecordPipelineActivity(t *testing.T) {
	m := New()
	h := m.Hooks()

	h.OnStatus("s", model.PipelineStatus{State: model.StateValidating})
	if got := testutil.ToFloat64(m.processing); got != 1 {
		t.Fatalf("processing = %v, want 1", got)
	}
	h.OnStageDone("s", pipeline.Stage{Name: "document"}, 1200*time.Millisecond)
	h.OnComplete("s", model.ChatEntry{ID: "e"})
	h.OnStatus("s", model.PipelineStatus{State: model.StateIdle})

	if got := testutil.ToFloat64(m.processing); got != 0 {
		t.Fatalf("processing = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.historyEntries); got != 1 {
		t.Fatalf("history entries = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.stageDuration); n != 1 {
		t.Fatalf("expected one stage series, got %d", n)
	}

	m.ObserveSubmission(nil)
	m.ObserveSubmission(pipeline.ErrSubmissionInFlight)
	m.ObserveUpload(session.ErrTooLarge)
	m.TrackSessions(func() int { return 3 })
	if got := testutil.ToFloat64(m.submissions.WithLabelValues(ResultInFlight)); got != 1 {
		t.Fatalf("in-flight submissions = %v", got)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "medassist_upload_validations_total{result=\"too_large\"} 1") ||
		!strings.Contains(rec.Body.String(), "medassist_sessions_active 3") {
		t.Fatalf("unexpected /metrics output:\n%s", rec.Body.String())
	}
}
