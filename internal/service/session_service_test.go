package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"docgate/internal/security"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func newTestSessionService(store SessionStore) *SessionService {
	s := NewSessionService(store, 24*time.Hour, testLog)
	s.now = fixedTime
	return s
}

// TestCreateSession_OneActivePerUser verifies that a second login leaves
// exactly one active session and invalidates the first token.
func TestCreateSession_OneActivePerUser(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestSessionService(store)
	ctx := context.Background()
	device := security.NewDevice(chromeUA, "10.0.0.1")

	first, err := svc.CreateSession(ctx, "u1", "token-a", device)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := svc.CreateSession(ctx, "u1", "token-b", device); err != nil {
		t.Fatalf("create second: %v", err)
	}

	if got := store.activeCount("u1"); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}
	if _, err := svc.ValidateSession(ctx, "u1", "token-a", device); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old token err = %v, want ErrSessionNotFound", err)
	}
	if s, _ := store.GetByID(ctx, first.ID); s.IsActive {
		t.Fatal("first session still active")
	}
}

// TestCreateSession_RecordsDevice verifies that the stored session carries
// the fingerprint and parsed agent labels.
func TestCreateSession_RecordsDevice(t *testing.T) {
	svc := newTestSessionService(newFakeSessionStore())
	device := security.NewDevice(chromeUA, "10.0.0.1")

	s, err := svc.CreateSession(context.Background(), "u1", "tok", device)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.DeviceID != security.Fingerprint(chromeUA, "10.0.0.1") {
		t.Errorf("device id = %q", s.DeviceID)
	}
	if s.Browser != "Chrome" || s.OS != "Windows" {
		t.Errorf("agent = %s/%s, want Chrome/Windows", s.Browser, s.OS)
	}
	if !s.ExpiresAt.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("expires at = %v", s.ExpiresAt)
	}
}

// TestValidateSession_DeviceMismatchRevokes verifies that a token presented
// from another address is refused and the session cannot be used again,
// even from the original device.
func TestValidateSession_DeviceMismatchRevokes(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestSessionService(store)
	ctx := context.Background()
	home := security.NewDevice(chromeUA, "10.0.0.1")

	if _, err := svc.CreateSession(ctx, "u1", "tok", home); err != nil {
		t.Fatalf("create: %v", err)
	}

	stolen := security.NewDevice(chromeUA, "203.0.113.9")
	if _, err := svc.ValidateSession(ctx, "u1", "tok", stolen); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("err = %v, want ErrDeviceMismatch", err)
	}
	if _, err := svc.ValidateSession(ctx, "u1", "tok", home); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("after revoke err = %v, want ErrSessionNotFound", err)
	}
}

// TestValidateSession_IdleBoundary verifies that a session idle for exactly
// the lifetime is valid and one idle a second longer is expired.
func TestValidateSession_IdleBoundary(t *testing.T) {
	cases := []struct {
		name string
		idle time.Duration
		want error
	}{
		{"fresh", time.Minute, nil},
		{"exactly lifetime", 24 * time.Hour, nil},
		{"past lifetime", 24*time.Hour + time.Second, ErrSessionExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeSessionStore()
			svc := newTestSessionService(store)
			ctx := context.Background()
			device := security.NewDevice(chromeUA, "10.0.0.1")

			s, err := svc.CreateSession(ctx, "u1", "tok", device)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			svc.now = func() time.Time { return s.LastActivity.Add(tc.idle) }

			_, err = svc.ValidateSession(ctx, "u1", "tok", device)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if tc.want != nil {
				if got, _ := store.GetByID(ctx, s.ID); got.IsActive {
					t.Fatal("expired session left active")
				}
			}
		})
	}
}

// TestValidateSession_Touches verifies that a successful validation slides
// the activity window forward.
func TestValidateSession_Touches(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestSessionService(store)
	ctx := context.Background()
	device := security.NewDevice(chromeUA, "10.0.0.1")

	if _, err := svc.CreateSession(ctx, "u1", "tok", device); err != nil {
		t.Fatalf("create: %v", err)
	}
	later := testNow.Add(23 * time.Hour)
	svc.now = func() time.Time { return later }

	s, err := svc.ValidateSession(ctx, "u1", "tok", device)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !s.LastActivity.Equal(later) || store.touched != 1 {
		t.Fatalf("last activity = %v touched = %d", s.LastActivity, store.touched)
	}

	svc.now = func() time.Time { return later.Add(23 * time.Hour) }
	if _, err := svc.ValidateSession(ctx, "u1", "tok", device); err != nil {
		t.Fatalf("validate after slide: %v", err)
	}
}

// TestTerminateOwnedSession verifies that users cannot end sessions they do
// not own.
func TestTerminateOwnedSession(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestSessionService(store)
	ctx := context.Background()
	device := security.NewDevice(chromeUA, "10.0.0.1")

	s, err := svc.CreateSession(ctx, "u1", "tok", device)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.TerminateOwnedSession(ctx, "u2", s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign terminate err = %v", err)
	}
	if err := svc.TerminateOwnedSession(ctx, "u1", s.ID); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := svc.TerminateSession(ctx, s.ID); err != nil {
		t.Fatalf("second terminate should be a no-op: %v", err)
	}
	if store.activeCount("u1") != 0 {
		t.Fatal("session still active")
	}
}

// TestSweepIdle verifies that the sweep only revokes sessions idle past the lifetime.
func TestSweepIdle(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestSessionService(store)
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "u1", "a", security.NewDevice(chromeUA, "10.0.0.1")); err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return testNow.Add(20 * time.Hour) }
	if _, err := svc.CreateSession(ctx, "u2", "b", security.NewDevice(chromeUA, "10.0.0.2")); err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return testNow.Add(25 * time.Hour) }
	n, err := svc.SweepIdle(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || store.activeCount("u1") != 0 || store.activeCount("u2") != 1 {
		t.Fatalf("swept %d, u1=%d u2=%d", n, store.activeCount("u1"), store.activeCount("u2"))
	}
}
