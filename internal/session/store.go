package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

// ErrAuthRequired is returned when an operation needs a bearer credential
// and none is available.
var ErrAuthRequired = errors.New("authentication required: please log in")

// User is the profile returned by the login endpoint.
type User struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      int32  `json:"role,omitempty"`
}

type state struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// Store holds the bearer credentials shared by the HTTP client and the
// progress channel.
//
// A Store created with an empty path lives only in memory. Otherwise every
// change is written to the file with mode 0600.
type Store struct {
	path string
	now  func() time.Time

	mu    sync.RWMutex
	state state
}

// NewStore creates an empty store persisted at path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Open loads a store from path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := NewStore(path)
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the access token, or "" if there is none or it has expired.
func (s *Store) Token() string {
	s.mu.RLock()
	token := s.state.Token
	s.mu.RUnlock()

	if token == "" || s.expired(token) {
		return ""
	}
	return token
}

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken
}

// User returns the logged-in user, if known.
func (s *Store) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return nil
	}
	u := *s.state.User
	return &u
}

// IsAuthenticated reports whether a usable access token is present.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// SetTokens replaces the stored tokens.
func (s *Store) SetTokens(token, refreshToken string) error {
	s.mu.Lock()
	s.state.Token = token
	s.state.RefreshToken = refreshToken
	s.mu.Unlock()
	return s.save()
}

// SetUser records the logged-in user.
func (s *Store) SetUser(u *User) error {
	s.mu.Lock()
	s.state.User = u
	s.mu.Unlock()
	return s.save()
}

// Clear forgets all credentials.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.state = state{}
	s.mu.Unlock()
	return s.save()
}

// expired reports whether a JWT access token carries an exp claim in the
// past. Tokens that are not JWTs are trusted as-is; the server decides.
func (s *Store) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Before(claims.ExpiresAt.Time)
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		log.WithError(err).WithField("path", s.path).Warn("Failed to persist session")
		return err
	}
	return nil
}
