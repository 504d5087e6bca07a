// Package testutil holds test doubles for the backend API.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// FakeManual is a manual held by the fake backend
type FakeManual struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	FileName   string    `json:"fileName"`
	MIMEType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	PageCount  int       `json:"pageCount"`
	Status     string    `json:"status"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// FakeBackend is an in-memory backend API served by httptest. Routes live
// under /v1, so clients use BaseURL.
type FakeBackend struct {
	Server *httptest.Server

	mu            sync.Mutex
	password      map[string]string
	identity      map[string]string // id token -> email
	refresh       map[string]string // refresh token -> email
	manuals       map[string]FakeManual
	order         []string
	queries       int
	seq           int
	rateLimitNext int
	retryAfter    int
	hits          map[string]int
	requestIDs    []string
	refreshDelay  time.Duration
}

// NewFakeBackend starts a backend with one user, demo@manualqa.test / secret
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		password: map[string]string{"demo@manualqa.test": "secret"},
		identity: map[string]string{},
		refresh:  map[string]string{},
		manuals:  map[string]FakeManual{},
		hits:     map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(fb.record)

	r.Route("/v1", func(r chi.Router) {
		r.Use(fb.rateLimit)

		r.Post("/auth/signin", fb.signIn)
		r.Post("/auth/refresh", fb.refreshTokens)

		r.Group(func(r chi.Router) {
			r.Use(fb.requireAuth)

			r.Post("/auth/signout", fb.signOut)
			r.Post("/query", fb.query)
			r.Post("/query/voice", fb.queryVoice)
			r.Get("/manuals", fb.listManuals)
			r.Post("/manuals", fb.uploadManual)
			r.Get("/manuals/{id}", fb.getManual)
			r.Delete("/manuals/{id}", fb.deleteManual)
			r.Get("/manuals/{id}/pages/{page}", fb.page)
			r.Get("/usage", fb.usage)
		})
	})

	fb.Server = httptest.NewServer(r)
	t.Cleanup(fb.Server.Close)
	return fb
}

// BaseURL is the API origin clients should be configured with
func (fb *FakeBackend) BaseURL() string {
	return fb.Server.URL + "/v1"
}

// ExpireIdentityTokens makes every issued identity token stale so the next
// authenticated call gets a 401. Refresh tokens stay valid.
func (fb *FakeBackend) ExpireIdentityTokens() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.identity = map[string]string{}
}

// RevokeRefreshTokens makes refresh fail with 401
func (fb *FakeBackend) RevokeRefreshTokens() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.refresh = map[string]string{}
}

// RateLimitNext answers the next n requests with 429 and Retry-After
func (fb *FakeBackend) RateLimitNext(n, retryAfterSeconds int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.rateLimitNext = n
	fb.retryAfter = retryAfterSeconds
}

// SetRefreshDelay slows the refresh endpoint so concurrent callers overlap
func (fb *FakeBackend) SetRefreshDelay(d time.Duration) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.refreshDelay = d
}

// Hits returns how many requests reached "METHOD /path"
func (fb *FakeBackend) Hits(route string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.hits[route]
}

// RequestIDs returns the X-Request-ID of every request, in arrival order
func (fb *FakeBackend) RequestIDs() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.requestIDs...)
}

// Manual returns a stored manual
func (fb *FakeBackend) Manual(id string) (FakeManual, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	m, ok := fb.manuals[id]
	return m, ok
}

func (fb *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.hits[r.Method+" "+strings.TrimPrefix(r.URL.Path, "/v1")]++
		fb.requestIDs = append(fb.requestIDs, r.Header.Get("X-Request-ID"))
		fb.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (fb *FakeBackend) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		limited := fb.rateLimitNext > 0
		if limited {
			fb.rateLimitNext--
		}
		retryAfter := fb.retryAfter
		fb.mu.Unlock()

		if limited {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fb *FakeBackend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		fb.mu.Lock()
		_, valid := fb.identity[token]
		fb.mu.Unlock()

		if !ok || !valid {
			writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fb *FakeBackend) issue(email string, withRefresh bool) map[string]interface{} {
	fb.seq++
	idToken := fmt.Sprintf("id-%d", fb.seq)
	fb.identity[idToken] = email

	resp := map[string]interface{}{
		"accessToken": fmt.Sprintf("access-%d", fb.seq),
		"idToken":     idToken,
		"expiresIn":   3600,
		"user":        map[string]string{"id": "user-1", "email": email, "name": "Demo User"},
	}
	if withRefresh {
		refreshToken := fmt.Sprintf("refresh-%d", fb.seq)
		fb.refresh[refreshToken] = email
		resp["refreshToken"] = refreshToken
	}
	return resp
}

func (fb *FakeBackend) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if want, ok := fb.password[req.Email]; !ok || want != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, fb.issue(req.Email, true))
}

func (fb *FakeBackend) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	fb.mu.Lock()
	delay := fb.refreshDelay
	fb.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	email, ok := fb.refresh[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh token revoked")
		return
	}
	// the refresh token is kept, so none is returned
	writeJSON(w, http.StatusOK, fb.issue(email, false))
}

func (fb *FakeBackend) signOut(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fb.mu.Lock()
	delete(fb.identity, token)
	fb.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (fb *FakeBackend) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question       string `json:"question"`
		ManualID       string `json:"manualId"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	fb.mu.Lock()
	fb.queries++
	fb.mu.Unlock()

	conversation := req.ConversationID
	if conversation == "" {
		conversation = "conv-1"
	}
	writeEnvelope(w, map[string]interface{}{
		"answer":         "Answer to: " + req.Question,
		"sources":        []map[string]interface{}{{"manualId": req.ManualID, "page": 3, "excerpt": "See section 4."}},
		"conversationId": conversation,
	})
}

func (fb *FakeBackend) queryVoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioBase64 string `json:"audioBase64"`
		Format      string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil || len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "audio is invalid")
		return
	}

	fb.mu.Lock()
	fb.queries++
	fb.mu.Unlock()

	writeEnvelope(w, map[string]interface{}{
		"transcript": fmt.Sprintf("%d bytes of %s audio", len(audio), req.Format),
		"answer":     "Voice answer",
		"sources":    []interface{}{},
	})
}

func (fb *FakeBackend) listManuals(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	list := make([]FakeManual, 0, len(fb.order))
	for _, id := range fb.order {
		list = append(list, fb.manuals[id])
	}
	fb.mu.Unlock()
	writeEnvelope(w, map[string]interface{}{"manuals": list})
}

func (fb *FakeBackend) uploadManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName      string `json:"fileName"`
		MIMEType      string `json:"mimeType"`
		ContentBase64 string `json:"contentBase64"`
		Title         string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "content is not valid base64")
		return
	}

	fb.mu.Lock()
	fb.seq++
	m := FakeManual{
		ID:         fmt.Sprintf("man-%d", fb.seq),
		Title:      req.Title,
		FileName:   req.FileName,
		MIMEType:   req.MIMEType,
		SizeBytes:  int64(len(content)),
		PageCount:  1,
		Status:     "ready",
		UploadedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	fb.manuals[m.ID] = m
	fb.order = append(fb.order, m.ID)
	fb.mu.Unlock()

	writeJSON(w, http.StatusCreated, m)
}

func (fb *FakeBackend) getManual(w http.ResponseWriter, r *http.Request) {
	m, ok := fb.Manual(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "manual not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (fb *FakeBackend) deleteManual(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if _, ok := fb.manuals[id]; !ok {
		writeError(w, http.StatusNotFound, "manual not found")
		return
	}
	delete(fb.manuals, id)
	for i, existing := range fb.order {
		if existing == id {
			fb.order = append(fb.order[:i], fb.order[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// onePixelPNG is a valid 1x1 PNG
var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func (fb *FakeBackend) page(w http.ResponseWriter, r *http.Request) {
	m, ok := fb.Manual(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "manual not found")
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 || page > m.PageCount {
		writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"imageBase64": base64.StdEncoding.EncodeToString(onePixelPNG),
		"mimeType":    "image/png",
	})
}

func (fb *FakeBackend) usage(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var stored int64
	for _, m := range fb.manuals {
		stored += m.SizeBytes
	}
	writeEnvelope(w, map[string]interface{}{
		"queriesToday":      fb.queries,
		"dailyLimit":        50,
		"manualsStored":     len(fb.manuals),
		"storageBytes":      stored,
		"storageLimitBytes": 100 << 20,
		"resetsAt":          "2026-01-03T00:00:00Z",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
