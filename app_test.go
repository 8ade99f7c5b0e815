package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []ContactMessage
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testServer struct {
	app    *App
	router *gin.Engine
	mailer *fakeMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &Config{
		ContactTimeout: time.Second,
		ChatSessionTTL: time.Hour,
		AdminUsername:  "owner",
		AdminPassword:  "secret",
	}
	mailer := &fakeMailer{}
	app := NewApp(cfg, defaultContent(), newTestStore(t), mailer)
	return &testServer{app: app, router: app.Router(), mailer: mailer}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return s.do(req)
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHomePage(t *testing.T) {
	s := newTestServer(t)
	w := s.get("/")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Maya Rivera")
	for _, p := range s.app.site.Projects {
		assert.Contains(t, body, p.Title)
		assert.Contains(t, body, `href="`+ProjectURL(p)+`"`)
	}
	assert.Contains(t, body, `data-category="Analysis"`)
}

func TestProjectPage(t *testing.T) {
	s := newTestServer(t)
	w := s.get("/projects/churn-analysis")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Customer Churn Analysis")
	assert.Contains(t, w.Body.String(), "scikit-learn")
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/projects/does-not-exist", "/no/such/page"} {
		t.Run(path, func(t *testing.T) {
			w := s.get(path)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Contains(t, w.Body.String(), "404")
			assert.Contains(t, w.Body.String(), path)
		})
	}
}

func TestSkillsFragment(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/skills?category=tools")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-category="Tools"`)
	assert.Contains(t, w.Body.String(), "Excel")

	w = s.get("/skills?category=unknown")
	assert.Contains(t, w.Body.String(), `data-category="Analysis"`)
}

func TestContactValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		form url.Values
	}{
		{"empty", url.Values{}},
		{"missing message", url.Values{"fullName": {"Ann"}, "email": {"ann@example.com"}}},
		{"bad email", url.Values{"fullName": {"Ann"}, "email": {"ann-at-example"}, "message": {"hi"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.postForm("/contact", tt.form)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), "notification-warning")
			assert.Contains(t, w.Body.String(), contactInvalidText)
		})
	}
	assert.Zero(t, s.mailer.count(), "invalid forms must not be sent")
}

func TestContactSuccess(t *testing.T) {
	s := newTestServer(t)
	form := url.Values{"fullName": {"Ann Lee"}, "email": {"ann@example.com"}, "message": {"Loved the churn project"}}

	w := s.postForm("/contact", form)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notification-success")
	assert.Contains(t, w.Body.String(), "Thank you for your message!")
	require.Equal(t, 1, s.mailer.count())
	assert.Equal(t, ContactMessage{Name: "Ann Lee", Email: "ann@example.com", Message: "Loved the churn project"}, s.mailer.sent[0])

	stats, err := s.app.store.Stats(time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ContactSuccesses)
}

func TestContactFailureShowsServiceMessage(t *testing.T) {
	s := newTestServer(t)
	s.mailer.err = errors.New("smtp: 535 auth failed")
	form := url.Values{"fullName": {"Ann"}, "email": {"ann@example.com"}, "message": {"hello"}}

	w := s.postForm("/contact", form)

	assert.Contains(t, w.Body.String(), "notification-error")
	assert.Contains(t, w.Body.String(), "smtp: 535 auth failed")

	stats, err := s.app.store.Stats(time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ContactFailures)
}

func TestChatWidgetFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/chat")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat-closed")
	cookie := cookieNamed(w, chatCookie)
	require.NotNil(t, cookie)

	w = s.postForm("/chat/toggle", nil, cookie)
	assert.Contains(t, w.Body.String(), "chat-open")
	assert.Contains(t, w.Body.String(), `hx-trigger="submit delay:600ms"`)

	w = s.postForm("/chat/messages", url.Values{"message": {"What are your skills?"}}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "What are your skills?")
	assert.Contains(t, body, "strongest skills are Excel, SQL, Tableau and Python")
	assert.Equal(t, cookie.Value, cookieNamed(w, chatCookie).Value)

	sess := s.app.chats.Get(cookie.Value)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, RoleUser, sess.Messages[1].Role)

	w = s.postForm("/chat/reset", nil, cookie)
	assert.NotContains(t, w.Body.String(), "What are your skills?")
	assert.Len(t, s.app.chats.Get(cookie.Value).Messages, 1)
}

func TestChatQueriesAreRecorded(t *testing.T) {
	s := newTestServer(t)
	cookie := cookieNamed(s.get("/chat"), chatCookie)
	require.NotNil(t, cookie)

	s.postForm("/chat/messages", url.Values{"message": {"skills"}}, cookie)
	s.postForm("/chat/messages", url.Values{"message": {"which is your favorite movie"}}, cookie)
	s.postForm("/chat/messages", url.Values{"message": {"   "}}, cookie)

	stats, err := s.app.store.Stats(time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.ChatQueries)
	require.Len(t, stats.UnansweredTop, 1)
	assert.Equal(t, "which is your favorite movie", stats.UnansweredTop[0].Question)
}

func TestAPIChat(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"Can I see your resume?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Reply string `json:"reply"`
		Rule  string `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "resume", resp.Rule)
	assert.Contains(t, resp.Reply, s.app.site.Profile.ResumePath)

	for _, body := range []string{`{}`, `{"message":"   "}`} {
		req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, s.do(req).Code, body)
	}

	stats, err := s.app.store.Stats(time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ChatQueries)
	assert.Empty(t, stats.UnansweredTop)
}

func TestAPIProjects(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/api/projects")
	require.Equal(t, http.StatusOK, w.Code)
	var projects []Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	assert.Equal(t, s.app.site.Projects, projects)

	w = s.get("/api/projects/bike-share-trends")
	require.Equal(t, http.StatusOK, w.Code)
	var p Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "City Bike Share Trends", p.Title)

	w = s.get("/api/projects/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), ErrProjectNotFound.Error())
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.get("/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSolarRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/solar")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="bill"`)

	w = s.postForm("/solar", url.Values{"bill": {"120"}, "rate": {"0.125"}, "sun_hours": {"5"}})
	assert.Contains(t, w.Body.String(), "8 kW")
	assert.Contains(t, w.Body.String(), "17 years")

	w = s.postForm("/solar", url.Values{"bill": {"0"}, "rate": {"0.125"}, "sun_hours": {"5"}})
	assert.Contains(t, w.Body.String(), "monthly bill must be positive")

	w = s.postForm("/solar", url.Values{"bill": {"lots"}, "rate": {"0.125"}, "sun_hours": {"5"}})
	assert.Contains(t, w.Body.String(), "Please enter numbers only.")
}

func TestAdminRequiresLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/admin/dashboard")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))

	w = s.postForm("/admin/login", url.Values{"username": {"owner"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")
}

func TestAdminLoginAndDashboard(t *testing.T) {
	s := newTestServer(t)

	w := s.postForm("/admin/login", url.Values{"username": {"owner"}, "password": {"secret"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/dashboard", w.Header().Get("Location"))
	token := cookieNamed(w, adminCookie)
	require.NotNil(t, token)

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(token)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dashboard")

	req = httptest.NewRequest(http.MethodGet, "/admin/api/stats", nil)
	req.AddCookie(token)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var stats AdminStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
}

func TestAdminLoginDisabledWithoutPasswordInRelease(t *testing.T) {
	s := newTestServer(t)
	s.app.cfg.AdminPassword = ""

	_, _, enabled := s.app.adminCredentials()
	assert.False(t, enabled)

	w := s.postForm("/admin/login", url.Values{"username": {"admin"}, "password": {"admin123"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVisitorTrackingSkipsDNTAndFragments(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("DNT", "1")
	s.do(req)
	s.get("/chat")
	s.get("/api/projects")
	s.get("/projects/churn-analysis")

	assert.Eventually(t, func() bool {
		stats, err := s.app.store.Stats(time.Now())
		return err == nil && stats.TotalVisitors == 1
	}, time.Second, 10*time.Millisecond)

	visitors, err := s.app.store.RecentVisitors(10)
	require.NoError(t, err)
	require.Len(t, visitors, 1)
	assert.Equal(t, "/projects/churn-analysis", visitors[0].Path)
}

func TestCleanupSweepsIdleChats(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	s.app.chats.now = func() time.Time { return now.Add(-2 * time.Hour) }
	s.app.chats.Get("")
	s.app.chats.now = time.Now

	s.app.cleanup()
	assert.Zero(t, s.app.chats.Len())
}
