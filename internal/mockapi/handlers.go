package mockapi

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, CodeBadRequest, "email and password are required")
		return
	}

	token, cl, err := s.issueToken(req.Email)
	if err != nil {
		fail(c, http.StatusInternalServerError, http.StatusInternalServerError, "failed to issue token")
		return
	}

	nickname, _, _ := strings.Cut(req.Email, "@")
	ok(c, gin.H{
		"token":         token,
		"refresh_token": uuid.NewString(),
		"expires_in":    int64(s.opts.TokenTTL.Seconds()),
		"user": gin.H{
			"user_id":  cl.Subject,
			"email":    req.Email,
			"nickname": nickname,
			"role":     1,
		},
	})
}

func (s *Server) logout(c *gin.Context) {
	cl := currentClaims(c)
	s.mu.Lock()
	s.revoked[cl.ID] = true
	s.mu.Unlock()
	ok(c, nil)
}

type parseRequest struct {
	URL       string `json:"url"`
	SkipCache bool   `json:"skip_cache"`
}

func (s *Server) parse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		fail(c, http.StatusBadRequest, CodeBadRequest, "url is required")
		return
	}
	if strings.Contains(req.URL, "unsupported") {
		fail(c, http.StatusOK, CodeUnsupported, "unsupported platform")
		return
	}

	id := videoID(req.URL)
	ok(c, gin.H{
		"video_id":    id,
		"platform":    "mock",
		"title":       "Mock Video " + id,
		"description": "Served by the mock backend",
		"duration":    212,
		"thumbnail":   "http://" + c.Request.Host + "/api/v1/thumbnail/" + id + ".jpg",
		"author":      "Mock Channel",
		"upload_date": "20240115",
		"view_count":  1024,
		"formats": []gin.H{
			{"format_id": "137", "quality": "1080p", "ext": "mp4", "height": 1080, "width": 1920, "fps": 30, "video_codec": "avc1.640028", "audio_codec": "none", "filesize": 48_000_000, "vbr": 4400},
			{"format_id": "22", "quality": "720p", "ext": "mp4", "height": 720, "width": 1280, "fps": 30, "video_codec": "avc1.64001F", "audio_codec": "mp4a.40.2", "filesize": 21_000_000},
			{"format_id": "140", "quality": "medium", "extension": "m4a", "video_codec": "none", "audio_codec": "mp4a.40.2", "abr": 129.5, "asr": 44100, "filesize": 3_400_000},
			{"format_id": "251", "quality": "medium", "extension": "webm", "video_codec": "none", "audio_codec": "opus", "abr": 160, "asr": 48000},
		},
	})
}

type submitRequest struct {
	URL      string `json:"url"`
	Mode     string `json:"mode"`
	Quality  string `json:"quality"`
	Format   string `json:"format"`
	FormatID string `json:"format_id"`
}

func (s *Server) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		fail(c, http.StatusBadRequest, CodeBadRequest, "url is required")
		return
	}
	if req.Mode != "quick_download" && req.Mode != "audio_only" {
		fail(c, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	if strings.Contains(req.URL, "quota") {
		fail(c, http.StatusOK, CodeQuota, "daily download quota exceeded")
		return
	}

	t := s.newTask(currentClaims(c).Subject, req)
	log.WithFields(log.Fields{
		"task_id":    t.id,
		"history_id": t.historyID,
		"mode":       req.Mode,
	}).Debug("Mock task accepted")

	ok(c, gin.H{
		"task_id":        t.id,
		"history_id":     t.historyID,
		"estimated_time": int(s.opts.StepInterval.Seconds() * float64(s.opts.Steps)),
	})
}

func (s *Server) file(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("history_id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, CodeBadRequest, "history_id is required")
		return
	}

	s.mu.Lock()
	t, found := s.history[id]
	s.mu.Unlock()
	if !found || t.user != currentClaims(c).Subject {
		fail(c, http.StatusNotFound, CodeNotFound, "download not found")
		return
	}

	status, _ := t.state()
	if status != taskCompleted {
		fail(c, http.StatusConflict, CodeNotReady, "file is not ready")
		return
	}

	body := t.content()
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": t.filename()}))
	c.Data(http.StatusOK, t.contentType(), body)
}

// thumbnail renders a small solid JPEG so clients can exercise artwork
// handling without network access.
func (s *Server) thumbnail(c *gin.Context) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 180))
	fill := color.RGBA{R: 0x1d, G: 0xa0, B: 0xc3, A: 0xff}
	for y := 0; y < 180; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		fail(c, http.StatusInternalServerError, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

func videoID(rawURL string) string {
	if i := strings.LastIndexAny(rawURL, "=/"); i >= 0 && i < len(rawURL)-1 {
		return rawURL[i+1:]
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String()[:8]
}
