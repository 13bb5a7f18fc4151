package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docgate/internal/models"
	"docgate/internal/repository"
)

var (
	testNow   = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	testLog   = zerolog.Nop()
	errStore  = errors.New("store unavailable")
	fixedTime = func() time.Time { return testNow }
)

// ---- sessions ----

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	touched  int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.Session)}
}

func (f *fakeSessionStore) Rotate(_ context.Context, session models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		if s.UserID == session.UserID && s.IsActive {
			s.IsActive = false
			f.sessions[id] = s
		}
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionStore) FindActiveByToken(_ context.Context, userID string, hash []byte) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive && string(s.SessionTokenHash) == string(hash) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (f *fakeSessionStore) GetByID(_ context.Context, id string) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessionStore) ListActiveByUser(_ context.Context, userID string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.IsActive = false
		f.sessions[id] = s
	}
	return nil
}

func (f *fakeSessionStore) DeactivateAll(_ context.Context, userID string, exceptID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.UserID == userID && s.IsActive && id != exceptID {
			s.IsActive = false
			f.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	s.LastActivity = at
	f.sessions[id] = s
	f.touched++
	return nil
}

func (f *fakeSessionStore) DeactivateIdle(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.IsActive && s.LastActivity.Before(cutoff) {
			s.IsActive = false
			f.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionStore) activeCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			n++
		}
	}
	return n
}

// ---- subscriptions ----

type fakeSubscriptionStore struct {
	subs       map[string]models.Subscription
	findErr    error
	increments int
}

func newFakeSubscriptionStore(subs ...models.Subscription) *fakeSubscriptionStore {
	f := &fakeSubscriptionStore{subs: make(map[string]models.Subscription)}
	for _, s := range subs {
		f.subs[s.ID] = s
	}
	return f
}

func (f *fakeSubscriptionStore) FindActiveByUser(_ context.Context, userID string, now time.Time) (models.Subscription, error) {
	if f.findErr != nil {
		return models.Subscription{}, f.findErr
	}
	var best *models.Subscription
	for _, s := range f.subs {
		s := s
		if s.UserID != userID || !usable(s, now) {
			continue
		}
		if best == nil || s.EndDate.After(best.EndDate) {
			best = &s
		}
	}
	if best == nil {
		return models.Subscription{}, repository.ErrSubscriptionNotFound
	}
	return *best, nil
}

// usable mirrors the WHERE clause of SubscriptionRepository.FindActiveByUser.
func usable(s models.Subscription, now time.Time) bool {
	return s.Status == models.SubscriptionStatusActive && s.IsActive && !s.EndDate.Before(now)
}

func (f *fakeSubscriptionStore) IncrementDocumentsUsed(_ context.Context, id string) error {
	s, ok := f.subs[id]
	if !ok {
		return repository.ErrSubscriptionNotFound
	}
	s.DocumentsUsed++
	f.subs[id] = s
	f.increments++
	return nil
}

func (f *fakeSubscriptionStore) ExpireEnded(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range f.subs {
		if s.Status == models.SubscriptionStatusActive && s.EndDate.Before(now) {
			s.Status = models.SubscriptionStatusExpired
			s.IsActive = false
			f.subs[id] = s
			n++
		}
	}
	return n, nil
}

// ---- settings ----

type fakeSettingStore struct {
	settings map[string]models.SystemSetting
	getErr   error
}

func newFakeSettingStore() *fakeSettingStore {
	return &fakeSettingStore{settings: make(map[string]models.SystemSetting)}
}

func (f *fakeSettingStore) Get(_ context.Context, key string) (models.SystemSetting, error) {
	if f.getErr != nil {
		return models.SystemSetting{}, f.getErr
	}
	s, ok := f.settings[key]
	if !ok {
		return models.SystemSetting{}, repository.ErrSettingNotFound
	}
	return s, nil
}

func (f *fakeSettingStore) Upsert(_ context.Context, setting models.SystemSetting) error {
	if prev, ok := f.settings[setting.Key]; ok && setting.Description == nil {
		setting.Description = prev.Description
	}
	f.settings[setting.Key] = setting
	return nil
}

func (f *fakeSettingStore) List(_ context.Context) ([]models.SystemSetting, error) {
	out := make([]models.SystemSetting, 0, len(f.settings))
	for _, s := range f.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ---- documents ----

type fakeDocumentStore struct {
	docs      map[string]models.Document
	analyses  map[string]models.DocumentAnalysis
	bypasses  map[string]models.BypassHistory
	created   int
	createErr error
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		docs:     make(map[string]models.Document),
		analyses: make(map[string]models.DocumentAnalysis),
		bypasses: make(map[string]models.BypassHistory),
	}
}

func (f *fakeDocumentStore) Create(_ context.Context, doc models.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = doc
	f.created++
	return nil
}

func (f *fakeDocumentStore) CreateWithResults(_ context.Context, doc models.Document, a *models.DocumentAnalysis, b *models.BypassHistory) error {
	f.docs[doc.ID] = doc
	f.created++
	if a != nil {
		f.analyses[doc.ID] = *a
	}
	if b != nil {
		f.bypasses[doc.ID] = *b
	}
	return nil
}

func (f *fakeDocumentStore) GetByID(_ context.Context, id string) (models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	return d, nil
}

func (f *fakeDocumentStore) FindLatestOriginalByHash(_ context.Context, userID string, hash string) (models.Document, error) {
	var best *models.Document
	for _, d := range f.docs {
		d := d
		if d.UserID != userID || d.ContentHash != hash || d.IsDuplicate {
			continue
		}
		if best == nil || d.UploadedAt.After(best.UploadedAt) {
			best = &d
		}
	}
	if best == nil {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	return *best, nil
}

func (f *fakeDocumentStore) LatestAnalysis(_ context.Context, id string) (models.DocumentAnalysis, error) {
	a, ok := f.analyses[id]
	if !ok {
		return models.DocumentAnalysis{}, repository.ErrAnalysisNotFound
	}
	return a, nil
}

func (f *fakeDocumentStore) LatestBypass(_ context.Context, id string) (models.BypassHistory, error) {
	b, ok := f.bypasses[id]
	if !ok {
		return models.BypassHistory{}, repository.ErrBypassNotFound
	}
	return b, nil
}

func (f *fakeDocumentStore) Approve(_ context.Context, id string, by string, at time.Time) (models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	if d.ApprovalStatus != models.ApprovalStatusPending {
		return models.Document{}, repository.ErrDocumentStateChanged
	}
	d.ApprovalStatus = models.ApprovalStatusApproved
	d.ApprovedBy = &by
	d.ApprovedAt = &at
	f.docs[id] = d
	return d, nil
}

func (f *fakeDocumentStore) Reject(_ context.Context, id string, by string, reason string, at time.Time) (models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	if d.ApprovalStatus != models.ApprovalStatusPending {
		return models.Document{}, repository.ErrDocumentStateChanged
	}
	d.ApprovalStatus = models.ApprovalStatusRejected
	d.RejectionReason = &reason
	d.ApprovedBy = &by
	d.ApprovedAt = &at
	d.Status = models.DocumentStatusFailed
	f.docs[id] = d
	return d, nil
}

func (f *fakeDocumentStore) ListByApprovalStatus(_ context.Context, status models.ApprovalStatus, _, _ int) ([]models.Document, error) {
	var out []models.Document
	for _, d := range f.docs {
		if d.RequiresApproval && d.ApprovalStatus == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocumentStore) ListByUser(_ context.Context, userID string, _, _ int) ([]models.Document, error) {
	var out []models.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocumentStore) List(_ context.Context, _, _ int) ([]models.Document, error) {
	out := make([]models.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocumentStore) MarkAnalyzing(_ context.Context, id string, _ time.Time) (models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return models.Document{}, repository.ErrDocumentNotFound
	}
	if d.Status == models.DocumentStatusAnalyzing || d.Status == models.DocumentStatusProcessing || d.IsDuplicate {
		return models.Document{}, repository.ErrDocumentStateChanged
	}
	d.Status = models.DocumentStatusAnalyzing
	f.docs[id] = d
	return d, nil
}

func (f *fakeDocumentStore) MarkFailed(_ context.Context, id string) error {
	d, ok := f.docs[id]
	if !ok {
		return repository.ErrDocumentNotFound
	}
	d.Status = models.DocumentStatusFailed
	f.docs[id] = d
	return nil
}

func (f *fakeDocumentStore) DuplicateStats(_ context.Context, userID string) (models.DuplicateStats, error) {
	var stats models.DuplicateStats
	for _, d := range f.docs {
		if d.UserID != userID {
			continue
		}
		stats.TotalDocuments++
		if d.IsDuplicate {
			stats.DuplicateDocuments++
		}
	}
	stats.OriginalDocuments = stats.TotalDocuments - stats.DuplicateDocuments
	if stats.TotalDocuments > 0 {
		stats.DuplicateRate = float64(stats.DuplicateDocuments) / float64(stats.TotalDocuments) * 100
	}
	return stats, nil
}

// ---- files and queue ----

type fakeFileStore struct {
	objects map[string][]byte
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{objects: make(map[string][]byte)}
}

func (f *fakeFileStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.objects[key] = data
	return key, nil
}

func (f *fakeFileStore) Get(_ context.Context, path string) ([]byte, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeFileStore) Delete(_ context.Context, path string) error {
	delete(f.objects, path)
	return nil
}

func (f *fakeFileStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) EnqueueDispatch(_ context.Context, id string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, id)
	return nil
}

// ---- users ----

type fakeUserStore struct {
	users map[string]models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]models.User)}
}

func (f *fakeUserStore) Create(_ context.Context, user models.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrUserDuplicate
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) FindByIdentifier(_ context.Context, identifier string) (models.User, error) {
	for _, u := range f.users {
		if u.Email == identifier || (u.Username != nil && *u.Username == identifier) {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserStore) SetActive(_ context.Context, id string, active bool) error {
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsActive = active
	f.users[id] = u
	return nil
}

type fakeLimiter struct {
	failures map[string]int
	max      int
}

func newFakeLimiter(max int) *fakeLimiter {
	return &fakeLimiter{failures: make(map[string]int), max: max}
}

func (l *fakeLimiter) Locked(_ context.Context, id string) (bool, error) {
	return l.failures[id] >= l.max, nil
}

func (l *fakeLimiter) RecordFailure(_ context.Context, id string) error {
	l.failures[id]++
	return nil
}

func (l *fakeLimiter) Reset(_ context.Context, id string) error {
	delete(l.failures, id)
	return nil
}

// ---- fixtures ----

func testCatalog() map[string]models.PackageFeatures {
	docTypes := []string{"application/pdf", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
	return map[string]models.PackageFeatures{
		"PROPOSAL": {Code: "PROPOSAL", Name: "Proposal", MaxDocuments: 10, MaxFileSizeMB: 10, MaxPages: 50, RequiresApproval: true, AllowedDocumentTypes: docTypes},
		"HASIL":    {Code: "HASIL", Name: "Hasil", MaxDocuments: 20, MaxFileSizeMB: 15, MaxPages: 100, RequiresApproval: true, AllowedDocumentTypes: docTypes},
		"FREE":     {Code: "FREE", Name: "Free", MaxDocuments: 2, MaxFileSizeMB: 5, MaxPages: 10, RequiresApproval: false},
	}
}

func activeSub(id, userID, pkg string, used int) models.Subscription {
	return models.Subscription{
		ID:            id,
		UserID:        userID,
		PackageCode:   pkg,
		Status:        models.SubscriptionStatusActive,
		IsActive:      true,
		StartDate:     testNow.AddDate(0, -1, 0),
		EndDate:       testNow.AddDate(0, 1, 0),
		DocumentsUsed: used,
	}
}

func intPtr(v int) *int { return &v }
