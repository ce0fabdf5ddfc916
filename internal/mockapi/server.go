package mockapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Response codes used in the envelope.
const (
	CodeOK           = 0
	CodeBadRequest   = 1001
	CodeUnsupported  = 2001
	CodeUnauthorized = 401
	CodeNotFound     = 404
	CodeNotReady     = 4090
	CodeQuota        = 4290
)

// Options configures a Server.
type Options struct {
	// Secret signs access tokens. A random secret is used when empty.
	Secret []byte

	// TokenTTL is the access token lifetime. Defaults to one hour.
	TokenTTL time.Duration

	// StepInterval is the time between pushed progress events.
	// Defaults to 300ms.
	StepInterval time.Duration

	// Steps is the number of progress events before completion.
	// Defaults to 5.
	Steps int

	// PingInterval is the websocket keepalive period. Defaults to 30s.
	PingInterval time.Duration

	// ConnectWait bounds how long a task waits for its owner to open a
	// progress connection before it starts. Defaults to 5s.
	ConnectWait time.Duration
}

func (o Options) withDefaults() Options {
	if len(o.Secret) == 0 {
		o.Secret = []byte(uuid.NewString())
	}
	if o.TokenTTL <= 0 {
		o.TokenTTL = time.Hour
	}
	if o.StepInterval <= 0 {
		o.StepInterval = 300 * time.Millisecond
	}
	if o.Steps <= 0 {
		o.Steps = 5
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ConnectWait <= 0 {
		o.ConnectWait = 5 * time.Second
	}
	return o
}

// Server is an in-memory stand-in for the media backend.
//
// URLs steer its behavior: a URL containing "unsupported" fails to parse,
// "quota" is rejected at submission, "fail" makes the task fail midway
// and "nohistory" completes without a history id.
type Server struct {
	opts   Options
	engine *gin.Engine
	hub    *hub

	mu          sync.Mutex
	revoked     map[string]bool
	tasks       map[string]*task
	history     map[int64]*task
	nextHistory int64
	seq         int

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New creates a Server with its routes registered.
func New(opts Options) *Server {
	s := &Server{
		opts:    opts.withDefaults(),
		revoked: make(map[string]bool),
		tasks:   make(map[string]*task),
		history: make(map[int64]*task),
		stop:    make(chan struct{}),
	}
	s.hub = newHub()
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close stops running tasks and drops progress connections.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.hub.closeAll()
	})
	s.wg.Wait()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", s.login)
		api.GET("/ws/progress", s.progressSocket)
		api.GET("/thumbnail/:name", s.thumbnail)

		auth := api.Group("")
		auth.Use(s.authMiddleware())

		auth.POST("/auth/logout", s.logout)
		auth.POST("/parse", s.parse)
		auth.POST("/download", s.submit)
		auth.GET("/download/file", s.file)
	}
	return r
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(email string) (string, *claims, error) {
	now := time.Now()
	c := &claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID(email),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.opts.Secret)
	return token, c, err
}

func (s *Server) verifyToken(raw string) (*claims, error) {
	token, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.opts.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	s.mu.Lock()
	revoked := s.revoked[c.ID]
	s.mu.Unlock()
	if revoked {
		return nil, errors.New("token revoked")
	}
	return c, nil
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		cl, err := s.verifyToken(parts[1])
		if err != nil {
			fail(c, http.StatusUnauthorized, CodeUnauthorized, "token is invalid or expired")
			c.Abort()
			return
		}
		c.Set("claims", cl)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"request_id": c.GetHeader("X-Request-ID"),
		}).Debug("Mock request")
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": CodeOK, "message": "success", "data": data})
}

func fail(c *gin.Context, status, code int, message string) {
	c.JSON(status, gin.H{"code": code, "message": message, "data": nil})
}

func currentClaims(c *gin.Context) *claims {
	v, _ := c.Get("claims")
	cl, _ := v.(*claims)
	return cl
}

func userID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(email))).String()
}
