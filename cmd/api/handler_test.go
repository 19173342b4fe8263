package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
	"replypilot-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type fakeDispatchRepo struct {
	logs map[string]*dispatchdomain.DispatchLog
}

func (f *fakeDispatchRepo) Create(entry *dispatchdomain.DispatchLog) error {
	f.logs[entry.ID] = entry
	return nil
}

func (f *fakeDispatchRepo) Delete(id string) error {
	delete(f.logs, id)
	return nil
}

func (f *fakeDispatchRepo) FindByID(id string) (*dispatchdomain.DispatchLog, error) {
	return f.logs[id], nil
}

func (f *fakeDispatchRepo) FindBySentMessageID(sentMessageID string) (*dispatchdomain.DispatchLog, error) {
	for _, l := range f.logs {
		if l.SentMessageID == sentMessageID {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeDispatchRepo) FindByMailboxID(mailboxID string, limit int) ([]*dispatchdomain.DispatchLog, error) {
	var out []*dispatchdomain.DispatchLog
	for _, l := range f.logs {
		if l.MailboxID == mailboxID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeDispatchRepo) AttachSentMessageID(id, sentMessageID string) error {
	if l, ok := f.logs[id]; ok {
		l.SentMessageID = sentMessageID
	}
	return nil
}

func (f *fakeDispatchRepo) UpdateStatusForward(id, newStatus string) (bool, error) {
	l, ok := f.logs[id]
	if !ok {
		return false, nil
	}
	if dispatchdomain.StatusRank(newStatus) <= dispatchdomain.StatusRank(l.Status) {
		return false, nil
	}
	l.Status = newStatus
	return true, nil
}

func (f *fakeDispatchRepo) ClearFollowUps(mailboxID, threadID string) error { return nil }

func (f *fakeDispatchRepo) FindFollowUpsDue(cutoff time.Time) ([]*dispatchdomain.DispatchLog, error) {
	return nil, nil
}

func (f *fakeDispatchRepo) MarkFollowUpSent(id string) error { return nil }

func newTestRouter(repo *fakeDispatchRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil, repo, &config.Config{AppURL: "http://app.example"})
	r := gin.New()
	SetupRoutes(r, h)
	return r
}

func sentDispatch(id string) *dispatchdomain.DispatchLog {
	return &dispatchdomain.DispatchLog{
		ID:            id,
		MailboxID:     "me@company.example",
		ThreadID:      "t1",
		SentMessageID: "provider-" + id,
		Status:        dispatchdomain.StatusSent,
	}
}

func TestTrackOpenServesPixelAndRecordsOpen(t *testing.T) {
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{"d1": sentDispatch("d1")}}
	router := newTestRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/track/open/d1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("content type = %q, want image/gif", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), trackingPixel) {
		t.Errorf("body is not the tracking pixel (%d bytes)", w.Body.Len())
	}
	if repo.logs["d1"].Status != dispatchdomain.StatusOpened {
		t.Errorf("status = %q, want opened", repo.logs["d1"].Status)
	}
}

func TestTrackOpenUnknownIDStillServesPixel(t *testing.T) {
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{}}
	router := newTestRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/track/open/ghost", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), trackingPixel) {
		t.Errorf("unknown id should still render the pixel, status %d", w.Code)
	}
}

func TestTrackClickRecordsAndRedirects(t *testing.T) {
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{"d1": sentDispatch("d1")}}
	router := newTestRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/track/click/d1?url=http%3A%2F%2Fdest.example%2Fpage", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "http://dest.example/page" {
		t.Errorf("redirect = %q, want the url parameter", loc)
	}
	if repo.logs["d1"].Status != dispatchdomain.StatusClicked {
		t.Errorf("status = %q, want clicked", repo.logs["d1"].Status)
	}
}

func TestTrackClickFallsBackToAppURL(t *testing.T) {
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{"d1": sentDispatch("d1")}}
	router := newTestRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/track/click/d1", nil)
	router.ServeHTTP(w, req)

	if loc := w.Header().Get("Location"); loc != "http://app.example" {
		t.Errorf("redirect = %q, want the configured app url", loc)
	}
}

func postWebhook(t *testing.T, router *gin.Engine, payload map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/email-status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestStatusWebhookMovesStatusForward(t *testing.T) {
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{"d1": sentDispatch("d1")}}
	router := newTestRouter(repo)

	w := postWebhook(t, router, map[string]string{"trackingId": "d1", "event": "opened"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"updated":true`) {
		t.Errorf("expected updated:true, got %s", w.Body.String())
	}
	if repo.logs["d1"].Status != dispatchdomain.StatusOpened {
		t.Errorf("status = %q, want opened", repo.logs["d1"].Status)
	}
}

func TestStatusWebhookNeverRegresses(t *testing.T) {
	entry := sentDispatch("d1")
	entry.Status = dispatchdomain.StatusClicked
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{"d1": entry}}
	router := newTestRouter(repo)

	w := postWebhook(t, router, map[string]string{"trackingId": "d1", "event": "opened"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"updated":false`) {
		t.Errorf("regressing event must be a no-op, got %s", w.Body.String())
	}
	if repo.logs["d1"].Status != dispatchdomain.StatusClicked {
		t.Errorf("status regressed to %q", repo.logs["d1"].Status)
	}
}

func TestStatusWebhookLooksUpBySentMessageID(t *testing.T) {
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{"d1": sentDispatch("d1")}}
	router := newTestRouter(repo)

	w := postWebhook(t, router, map[string]string{"sentMessageId": "provider-d1", "event": "clicked"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if repo.logs["d1"].Status != dispatchdomain.StatusClicked {
		t.Errorf("status = %q, want clicked", repo.logs["d1"].Status)
	}
}

func TestStatusWebhookRejectsUnknownEvent(t *testing.T) {
	repo := &fakeDispatchRepo{logs: map[string]*dispatchdomain.DispatchLog{"d1": sentDispatch("d1")}}
	router := newTestRouter(repo)

	w := postWebhook(t, router, map[string]string{"trackingId": "d1", "event": "bounced"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if repo.logs["d1"].Status != dispatchdomain.StatusSent {
		t.Errorf("status moved to %q on an unknown event", repo.logs["d1"].Status)
	}
}
