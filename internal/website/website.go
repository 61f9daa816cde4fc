package website

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/docsplain/internal/flow"
	"github.com/wolfeidau/docsplain/internal/generate"
	httpmw "github.com/wolfeidau/docsplain/internal/http"
	"github.com/wolfeidau/docsplain/internal/session"
)

const (
	sessionCookie = "_session"

	maxUploadBytes   = 32 << 20
	maxKBImportBytes = 1 << 20
)

// uploadSlots are the CSV exports accepted by the generate form.
var uploadSlots = []string{"epics", "stories", "fixes"}

// Config configures the website.
type Config struct {
	Controller *flow.Controller
	Sessions   session.Store
	SessionTTL time.Duration

	// SecureCookies marks the session cookie Secure, disable only for plain HTTP development.
	SecureCookies bool

	// TrustedOrigins are extra origins allowed to submit forms cross-origin.
	TrustedOrigins []string
}

// Website serves the application pages.
type Website struct {
	cfg      Config
	ctrl     *flow.Controller
	sessions session.Store
	pages    *renderer
}

// New creates the website.
func New(cfg Config) (*Website, error) {
	if cfg.Controller == nil || cfg.Sessions == nil {
		return nil, errors.New("controller and session store are required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}

	return &Website{
		cfg:      cfg,
		ctrl:     cfg.Controller,
		sessions: cfg.Sessions,
		pages:    pages,
	}, nil
}

// Handler returns the routes wrapped with cross-origin protection and compression.
func (s *Website) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.withSession(s.index))
	mux.HandleFunc("GET /callback", s.withSession(s.callback))
	mux.HandleFunc("GET /login", s.withSession(s.login))
	mux.HandleFunc("POST /logout", s.withSession(s.logout))
	mux.HandleFunc("POST /reset", s.withSession(s.reset))
	mux.HandleFunc("POST /register", s.withSession(s.register))
	mux.HandleFunc("GET /setup", s.withSession(s.redirectHome))
	mux.HandleFunc("POST /setup", s.withSession(s.saveKnowledgeBase))
	mux.HandleFunc("POST /kb/edit", s.withSession(s.editKnowledgeBase))
	mux.HandleFunc("GET /kb/export", s.withSession(s.exportKnowledgeBase))
	mux.HandleFunc("POST /kb/import", s.withSession(s.importKnowledgeBase))
	mux.HandleFunc("POST /generate", s.withSession(s.generate))
	mux.HandleFunc("GET /download", s.withSession(s.download))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	protection := csrf.New()
	for _, origin := range s.cfg.TrustedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid trusted origin %q: %w", origin, err)
		}
	}

	return httpmw.Chain(mux,
		func(h http.Handler) http.Handler { return gzhttp.GzipHandler(h) },
		httpmw.NoStore(),
		protection.Handler,
	), nil
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession loads or starts the browser's session and saves it after the handler runs.
func (s *Website) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := s.loadSession(ctx, w, r)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to start session")
			http.Error(w, "failed to start session", http.StatusInternalServerError)
			return
		}

		ctx = zerolog.Ctx(ctx).With().Str("session_state", string(sess.State)).Logger().WithContext(ctx)

		sw := &sessionWriter{ResponseWriter: w, save: func() {
			if err := s.sessions.Save(ctx, sess); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to save session")
			}
		}}

		next(sw, r.WithContext(ctx), sess)
		sw.saveOnce()
	}
}

// sessionWriter saves the session before the first byte of the response is sent,
// so a redirected browser always sees the updated session.
type sessionWriter struct {
	http.ResponseWriter
	save  func()
	saved bool
}

func (w *sessionWriter) saveOnce() {
	if !w.saved {
		w.saved = true
		w.save()
	}
}

func (w *sessionWriter) WriteHeader(status int) {
	w.saveOnce()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.saveOnce()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Website) loadSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		sess, err := s.sessions.Get(ctx, cookie.Value)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, session.ErrSessionExpired) {
			return nil, err
		}
		log.Debug().Err(err).Msg("Starting a new session")
	}

	sess, err := session.New(s.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	sess.IPAddress = httpmw.ClientIPFromContext(ctx)
	sess.UserAgent = r.UserAgent()

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
	})

	return sess, nil
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Website) redirectHome(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	redirectHome(w, r)
}

func (s *Website) index(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.URL.Query().Has("code") || r.URL.Query().Has("error") {
		s.callback(w, r, sess)
		return
	}

	ctx := r.Context()

	if err := s.ctrl.Resume(ctx, sess); err != nil {
		s.pages.render(w, r, http.StatusOK, "error", &pageData{
			Flashes: sess.TakeFlashes(),
			Error:   "Your session is in an invalid state and needs to be reset.",
		})
		return
	}

	data := &pageData{User: sess.User}
	page := string(sess.State)

	switch sess.State {
	case session.StateRegister:
		data.Pending = sess.PendingClaims
	case session.StateSetupKB:
		data.Form = editableForm(s.ctrl.KnowledgeBaseForm(ctx, sess))
	case session.StateMainApp:
		data.Blocks = parseNotes(sess.GeneratedNotes)
	case session.StateAwaitingCode:
		// an exchange never outlives its request
		page = "error"
		data.Error = "A sign in was interrupted."
	}

	data.Flashes = sess.TakeFlashes()
	s.pages.render(w, r, http.StatusOK, page, data)
}

// callback consumes the authorization response and redirects so the code leaves the address bar.
func (s *Website) callback(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()

	switch {
	case q.Get("error") != "":
		zerolog.Ctx(r.Context()).Warn().
			Str("error", q.Get("error")).
			Str("error_description", q.Get("error_description")).
			Msg("Identity provider returned an error")
		sess.OAuthState = ""
		sess.AddFlash(session.FlashError, "Authentication failed: %s", q.Get("error_description"))
	case q.Get("code") != "":
		s.ctrl.HandleCode(r.Context(), sess, q.Get("code"), q.Get("state"))
	}

	redirectHome(w, r)
}

func (s *Website) login(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if sess.State != session.StateLogin {
		redirectHome(w, r)
		return
	}

	authURL, err := s.ctrl.BeginLogin(sess)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to begin login")
		http.Error(w, "failed to begin login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Website) logout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.ctrl.Logout(r.Context(), sess)
	redirectHome(w, r)
}

func (s *Website) reset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.ctrl.Reset(r.Context(), sess)
	redirectHome(w, r)
}

func (s *Website) register(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.ctrl.Register(r.Context(), sess, r.PostFormValue("org_name"))
	redirectHome(w, r)
}

func (s *Website) saveKnowledgeBase(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := r.ParseForm(); err != nil {
		sess.AddFlash(session.FlashError, "Could not read the form: %v", err)
		redirectHome(w, r)
		return
	}

	s.ctrl.SaveKnowledgeBase(r.Context(), sess, formFromRequest(r))
	redirectHome(w, r)
}

func (s *Website) editKnowledgeBase(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.ctrl.EditKnowledgeBase(r.Context(), sess)
	redirectHome(w, r)
}

func (s *Website) exportKnowledgeBase(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	data, err := s.ctrl.ExportKnowledgeBase(r.Context(), sess)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Knowledge base export failed")
		sess.AddFlash(session.FlashError, "There is no knowledge base to export.")
		redirectHome(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="knowledge_base.yaml"`)
	_, _ = w.Write(data)
}

func (s *Website) importKnowledgeBase(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxKBImportBytes)

	file, _, err := r.FormFile("knowledge_base")
	if err != nil {
		sess.AddFlash(session.FlashWarning, "Please choose a YAML file to import.")
		redirectHome(w, r)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sess.AddFlash(session.FlashError, "Could not read the uploaded file: %v", err)
		redirectHome(w, r)
		return
	}

	s.ctrl.ImportKnowledgeBase(r.Context(), sess, data)
	redirectHome(w, r)
}

func (s *Website) generate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sess.AddFlash(session.FlashError, "Could not read the uploaded files: %v", err)
		redirectHome(w, r)
		return
	}

	tables, err := readTables(r)
	if err != nil {
		sess.AddFlash(session.FlashError, "Error parsing CSV file: %v", err)
		redirectHome(w, r)
		return
	}

	s.ctrl.Generate(r.Context(), sess, tables)
	redirectHome(w, r)
}

// readTables parses every non-empty upload slot.
func readTables(r *http.Request) ([]*generate.Table, error) {
	var tables []*generate.Table

	for _, slot := range uploadSlots {
		file, header, err := r.FormFile(slot)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if header.Size == 0 {
			file.Close()
			continue
		}

		table, err := generate.ParseCSV(slot, file)
		file.Close()
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	return tables, nil
}

func (s *Website) download(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	result, err := s.ctrl.Document(r.Context(), sess)
	if err != nil {
		if !errors.Is(err, flow.ErrNoNotes) {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to render document")
		}
		sess.AddFlash(session.FlashWarning, "Generate release notes before downloading.")
		redirectHome(w, r)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	_, _ = w.Write(result.Data)
}
