package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"docgate/internal/config"
	"docgate/internal/models"
	"docgate/internal/repository"
	"docgate/internal/security"
	"docgate/internal/service"
)

const (
	testSecret = "handler-test-secret"
	testAgent  = "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0"
	testIP     = "203.0.113.10"
)

type memSessions struct {
	sessions map[string]models.Session
}

func (m *memSessions) Rotate(_ context.Context, session models.Session) error {
	for id, s := range m.sessions {
		if s.UserID == session.UserID {
			s.IsActive = false
			m.sessions[id] = s
		}
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memSessions) FindActiveByToken(_ context.Context, userID string, hash []byte) (models.Session, error) {
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive && string(s.SessionTokenHash) == string(hash) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (m *memSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) ListActiveByUser(_ context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessions) Deactivate(_ context.Context, id string) error {
	if s, ok := m.sessions[id]; ok {
		s.IsActive = false
		m.sessions[id] = s
	}
	return nil
}

func (m *memSessions) DeactivateAll(_ context.Context, userID string, exceptID string) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.UserID == userID && s.IsActive && id != exceptID {
			s.IsActive = false
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *memSessions) Touch(_ context.Context, id string, at time.Time) error {
	s := m.sessions[id]
	s.LastActivity = at
	m.sessions[id] = s
	return nil
}

func (m *memSessions) DeactivateIdle(context.Context, time.Time) (int64, error) { return 0, nil }

type memUsers struct {
	users map[string]models.User
}

func (m *memUsers) Create(_ context.Context, user models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) FindByIdentifier(_ context.Context, identifier string) (models.User, error) {
	for _, u := range m.users {
		if u.Email == identifier {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) SetActive(_ context.Context, id string, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

type memSettings struct {
	settings map[string]models.SystemSetting
}

func (m *memSettings) Get(_ context.Context, key string) (models.SystemSetting, error) {
	s, ok := m.settings[key]
	if !ok {
		return models.SystemSetting{}, repository.ErrSettingNotFound
	}
	return s, nil
}

func (m *memSettings) Upsert(_ context.Context, setting models.SystemSetting) error {
	m.settings[setting.Key] = setting
	return nil
}

func (m *memSettings) List(context.Context) ([]models.SystemSetting, error) {
	out := make([]models.SystemSetting, 0, len(m.settings))
	for _, s := range m.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type memSubscriptions struct{}

func (memSubscriptions) FindActiveByUser(context.Context, string, time.Time) (models.Subscription, error) {
	return models.Subscription{}, repository.ErrSubscriptionNotFound
}

func (memSubscriptions) IncrementDocumentsUsed(context.Context, string) error { return nil }

func (memSubscriptions) ExpireEnded(context.Context, time.Time) (int64, error) { return 0, nil }

// memDocuments backs every document-facing store interface.
type memDocuments struct {
	docs   map[string]models.Document
	writes int
}

func (m *memDocuments) Create(_ context.Context, doc models.Document) error {
	m.docs[doc.ID] = doc
	m.writes++
	return nil
}

func (m *memDocuments) CreateWithResults(ctx context.Context, doc models.Document, _ *models.DocumentAnalysis, _ *models.BypassHistory) error {
	return m.Create(ctx, doc)
}

func (m *memDocuments) GetByID(_ context.Context, id string) (models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	return d, nil
}

func (m *memDocuments) FindLatestOriginalByHash(context.Context, string, string) (models.Document, error) {
	return models.Document{}, repository.ErrDocumentNotFound
}

func (m *memDocuments) LatestAnalysis(context.Context, string) (models.DocumentAnalysis, error) {
	return models.DocumentAnalysis{}, repository.ErrAnalysisNotFound
}

func (m *memDocuments) LatestBypass(context.Context, string) (models.BypassHistory, error) {
	return models.BypassHistory{}, repository.ErrBypassNotFound
}

func (m *memDocuments) ListByUser(_ context.Context, userID string, _, _ int) ([]models.Document, error) {
	var out []models.Document
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocuments) List(context.Context, int, int) ([]models.Document, error) {
	out := make([]models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memDocuments) DuplicateStats(_ context.Context, userID string) (models.DuplicateStats, error) {
	var stats models.DuplicateStats
	for _, d := range m.docs {
		if d.UserID == userID {
			stats.TotalDocuments++
		}
	}
	stats.OriginalDocuments = stats.TotalDocuments
	return stats, nil
}

func (m *memDocuments) Approve(_ context.Context, id string, by string, at time.Time) (models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	if d.ApprovalStatus != models.ApprovalStatusPending {
		return models.Document{}, repository.ErrDocumentStateChanged
	}
	d.ApprovalStatus = models.ApprovalStatusApproved
	d.ApprovedBy, d.ApprovedAt = &by, &at
	m.docs[id] = d
	m.writes++
	return d, nil
}

func (m *memDocuments) Reject(_ context.Context, id string, by string, reason string, at time.Time) (models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	if d.ApprovalStatus != models.ApprovalStatusPending {
		return models.Document{}, repository.ErrDocumentStateChanged
	}
	d.ApprovalStatus = models.ApprovalStatusRejected
	d.RejectionReason = &reason
	d.ApprovedBy, d.ApprovedAt = &by, &at
	m.docs[id] = d
	m.writes++
	return d, nil
}

func (m *memDocuments) ListByApprovalStatus(_ context.Context, status models.ApprovalStatus, _, _ int) ([]models.Document, error) {
	var out []models.Document
	for _, d := range m.docs {
		if d.ApprovalStatus == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocuments) MarkAnalyzing(_ context.Context, id string, _ time.Time) (models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	d.Status = models.DocumentStatusAnalyzing
	m.docs[id] = d
	m.writes++
	return d, nil
}

func (m *memDocuments) MarkFailed(_ context.Context, id string) error {
	d := m.docs[id]
	d.Status = models.DocumentStatusFailed
	m.docs[id] = d
	m.writes++
	return nil
}

type memFiles struct {
	objects map[string][]byte
}

func (m *memFiles) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.objects[key] = data
	return key, nil
}

func (m *memFiles) Get(_ context.Context, path string) ([]byte, error) {
	data, ok := m.objects[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (m *memFiles) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memFiles) Delete(_ context.Context, path string) error {
	delete(m.objects, path)
	return nil
}

type memQueue struct {
	enqueued []string
}

func (q *memQueue) EnqueueDispatch(_ context.Context, id string) error {
	q.enqueued = append(q.enqueued, id)
	return nil
}

// testAPI is the full router over in-memory stores.
type testAPI struct {
	router   *gin.Engine
	sessions *memSessions
	users    *memUsers
	settings *memSettings
	docs     *memDocuments
	files    *memFiles
	queue    *memQueue
	svc      Services
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	api := &testAPI{
		sessions: &memSessions{sessions: map[string]models.Session{}},
		users:    &memUsers{users: map[string]models.User{}},
		settings: &memSettings{settings: map[string]models.SystemSetting{}},
		docs:     &memDocuments{docs: map[string]models.Document{}},
		files:    &memFiles{objects: map[string][]byte{}},
		queue:    &memQueue{},
	}

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret:    testSecret,
			JWTAccessTTL:       time.Hour,
			SessionLifetime:    24 * time.Hour,
			LoginRatePerMinute: 100,
			LoginBurst:         100,
		},
	}
	log := zerolog.Nop()

	sessions := service.NewSessionService(api.sessions, cfg.Security.SessionLifetime, log)
	settings := service.NewSettingsService(api.settings, log)
	policy := service.NewPolicyService(memSubscriptions{}, map[string]models.PackageFeatures{}, log)
	approvals := service.NewApprovalService(api.docs, settings, log)
	duplicates := service.NewDuplicateService(api.docs, log)
	api.svc = Services{
		Auth:       service.NewAuthService(api.users, sessions, nil, cfg, log),
		Sessions:   sessions,
		Policy:     policy,
		Documents:  service.NewDocumentService(api.docs, api.files, policy, duplicates, approvals, log),
		Dispatch:   service.NewDispatchService(api.docs, api.files, api.queue, log),
		Duplicates: duplicates,
		Approvals:  approvals,
		Settings:   settings,
	}

	api.router = gin.New()
	NewHandlerSet(log, cfg, api.svc).Routes(api.router.Group("/api"))
	return api
}

// login seeds user and returns a bearer token bound to the test device.
func (a *testAPI) login(t *testing.T, id string, role models.UserRole) (string, models.Session) {
	t.Helper()
	user := models.User{ID: id, Email: id + "@example.com", Name: id, Role: role, IsActive: true}
	a.users.users[id] = user

	opaque := "opaque-" + id
	session, err := a.svc.Sessions.CreateSession(context.Background(), id, opaque, security.NewDevice(testAgent, testIP))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	token, err := security.GenerateAccessToken(testSecret, id, session.ID, opaque, string(role), time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token, session
}

func (a *testAPI) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", testAgent)
	req.Header.Set("X-Real-IP", testIP)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func pendingDocument(id, userID string) models.Document {
	return models.Document{
		ID:               id,
		UserID:           userID,
		Title:            "Thesis",
		OriginalFilename: "thesis.docx",
		UploadPath:       "documents/" + id + ".docx",
		Status:           models.DocumentStatusPending,
		RequiresApproval: true,
		ApprovalStatus:   models.ApprovalStatusPending,
	}
}
