package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// maxUploadBytes bounds an accepted recording.
const maxUploadBytes = 256 << 20

// Options configures the development backend.
type Options struct {
	// Bucket is reported in upload responses.
	Bucket string

	// Secret, when set, requires an HS256 bearer token signed with it.
	Secret []byte

	// FailUploads makes the next N uploads fail with 503.
	FailUploads int
}

// Recording is an accepted upload.
type Recording struct {
	AttemptID string    `json:"attempt_id"`
	Index     int       `json:"question_index"`
	Bytes     int       `json:"bytes"`
	MIMEType  string    `json:"mime_type"`
	At        time.Time `json:"uploaded_at"`
}

// Session is the server-side view of a practice session.
type Session struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	EndedAt    *time.Time          `json:"ended_at,omitempty"`
	History    []string            `json:"history"`
	Recordings map[int][]Recording `json:"recordings"`
}

// Server is an in-memory stand-in for the practice backend.
type Server struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	failUploads int
	opts        Options
	log         zerolog.Logger
}

// New creates a Server.
func New(opts Options, log zerolog.Logger) *Server {
	if opts.Bucket == "" {
		opts.Bucket = "recordings"
	}
	return &Server{
		sessions:    make(map[string]*Session),
		failUploads: opts.FailUploads,
		opts:        opts,
		log:         log.With().Str("component", "devserver").Logger(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/sessions/{id}").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/status", s.updateStatus).Methods(http.MethodPatch)
	api.HandleFunc("/recordings/{index:[0-9]+}", s.uploadRecording).Methods(http.MethodPost)
	api.HandleFunc("/feedback", s.feedback).Methods(http.MethodGet)

	r.Use(s.logRequests)
	return r
}

// FailNextUploads makes the next n uploads fail with 503.
func (s *Server) FailNextUploads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = n
}

// Session returns a copy of the session state.
func (s *Server) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// IssueToken signs a development token for subject.
func (s *Server) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(s.opts.Secret) == 0 {
		return "", errors.New("server has no signing secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
}

type statusRequest struct {
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(id)
	if terminal(sess.Status) && terminal(req.Status) {
		// Session already ended; a late terminal report changes nothing.
		writeJSON(w, http.StatusOK, sess)
		return
	}
	if !allowed(sess.Status, req.Status) {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot move from %q to %q", sess.Status, req.Status))
		return
	}
	sess.Status = req.Status
	sess.History = append(sess.History, req.Status)
	if req.StartedAt != nil {
		sess.StartedAt = req.StartedAt
	}
	if req.EndedAt != nil {
		sess.EndedAt = req.EndedAt
	}
	writeJSON(w, http.StatusOK, sess)
}

// allowed reports whether a session may move from one status to another.
// done and canceled are terminal.
func allowed(from, to string) bool {
	switch to {
	case "running", "done", "canceled":
		return from == "" || from == "running"
	}
	return false
}

func terminal(status string) bool {
	return status == "done" || status == "canceled"
}

func (s *Server) uploadRecording(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question index")
		return
	}

	s.mu.Lock()
	if s.failUploads > 0 {
		s.failUploads--
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "upload rejected")
		return
	}
	s.mu.Unlock()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	if got := r.FormValue("question_index"); got != strconv.Itoa(index) {
		writeError(w, http.StatusBadRequest, "question_index does not match path")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read file part")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty recording")
		return
	}

	rec := Recording{
		AttemptID: uuid.NewString(),
		Index:     index,
		Bytes:     len(data),
		MIMEType:  mimetype.Detect(data).String(),
		At:        time.Now().UTC(),
	}

	s.mu.Lock()
	sess := s.session(id)
	sess.Recordings[index] = append(sess.Recordings[index], rec)
	s.mu.Unlock()

	path := fmt.Sprintf("%s/%d/%s.webm", id, index, rec.AttemptID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"attempt_id": rec.AttemptID,
		"storage": map[string]any{
			"bucket": s.opts.Bucket,
			"path":   path,
			"url":    fmt.Sprintf("http://%s/%s/%s", r.Host, s.opts.Bucket, path),
		},
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Session(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// feedback lists the latest attempt per question in index order.
func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Session(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	indexes := make([]int, 0, len(sess.Recordings))
	for i := range sess.Recordings {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	latest := make([]Recording, 0, len(indexes))
	for _, i := range indexes {
		recs := sess.Recordings[i]
		latest = append(latest, recs[len(recs)-1])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"status":     sess.Status,
		"attempts":   latest,
	})
}

// session returns the named session, creating it on first use. Callers hold mu.
func (s *Server) session(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, History: []string{}, Recordings: make(map[int][]Recording)}
		s.sessions[id] = sess
	}
	return sess
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.opts.Secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return s.opts.Secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.code).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (sess *Session) clone() Session {
	out := *sess
	out.History = append([]string(nil), sess.History...)
	out.Recordings = make(map[int][]Recording, len(sess.Recordings))
	for i, recs := range sess.Recordings {
		out.Recordings[i] = append([]Recording(nil), recs...)
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
