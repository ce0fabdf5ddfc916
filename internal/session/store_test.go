package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signedToken(t *testing.T, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expires)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestStore_TokenExpiry(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"empty", "", false},
		{"opaque token", "abc123", true},
		{"valid jwt", signedToken(t, time.Now().Add(time.Hour)), true},
		{"expired jwt", signedToken(t, time.Now().Add(-time.Minute)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore("")
			if err := s.SetTokens(tt.token, "refresh"); err != nil {
				t.Fatalf("SetTokens: %v", err)
			}
			if got := s.IsAuthenticated(); got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	s := NewStore(path)
	if err := s.SetTokens("tok", "ref"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if err := s.SetUser(&User{UserID: "u1", Email: "a@b.c"}); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("session file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}

	loaded, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if loaded.Token() != "tok" || loaded.RefreshToken() != "ref" {
		t.Errorf("reloaded tokens = %q/%q", loaded.Token(), loaded.RefreshToken())
	}
	if u := loaded.User(); u == nil || u.UserID != "u1" {
		t.Errorf("reloaded user = %+v", u)
	}

	if err := loaded.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	again, err := Open(path)
	if err != nil {
		t.Fatalf("Open after clear: %v", err)
	}
	if again.IsAuthenticated() {
		t.Error("store should be empty after Clear")
	}
}

func TestOpen_MissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("new store should not be authenticated")
	}
}
