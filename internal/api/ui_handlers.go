package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PostCraft/internal/export"
	"github.com/BTreeMap/PostCraft/internal/flow"
	"github.com/BTreeMap/PostCraft/internal/mockup"
	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/google/uuid"
)

// SessionCookieName identifies the UI session.
const SessionCookieName = "postcraft_session"

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type platformOption struct {
	Value    models.Platform
	Label    string
	Selected bool
}

type indexPage struct {
	State     flow.State
	CanSubmit bool
	Platforms []platformOption
	Mockup    template.HTML
}

// sessionID returns the caller's session ID, issuing a cookie when absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.opts.SessionIdleTimeout.Seconds()),
	})
	return id
}

func renderPage(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Server.renderPage: template execution failed", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Server.renderPage: write failed", "template", name, "error", err)
	}
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Get(s.sessionID(w, r))

	page := indexPage{State: st, CanSubmit: st.CanSubmit()}
	for _, p := range models.Platforms {
		page.Platforms = append(page.Platforms, platformOption{Value: p, Label: p.Label(), Selected: p == st.Platform})
	}
	if st.Post != nil {
		card, err := mockup.Render(string(st.Post.Platform), st.Post.Content, st.Post.ImageURL)
		if err != nil {
			slog.Error("Server.indexHandler: mockup render failed", "error", err)
		}
		page.Mockup = card
	}
	renderPage(w, http.StatusOK, "index.html", page)
}

func (s *Server) generateFormHandler(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.generateFormHandler: invalid form", "error", err)
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	// The cycle outlives a client that navigates away; the session keeps the result.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.GenerateTimeout)
	defer cancel()

	_, err := s.orchestrator.Submit(ctx, s.sessions, sid, r.PostFormValue("prompt"), r.PostFormValue("platform"))
	if err != nil && !errors.Is(err, flow.ErrSubmitDisabled) {
		slog.Warn("Server.generateFormHandler: generation failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) dismissHandler(w http.ResponseWriter, r *http.Request) {
	s.sessions.DismissError(s.sessionID(w, r))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Get(s.sessionID(w, r))
	if st.Post == nil {
		http.Error(w, "No generated post to download", http.StatusNotFound)
		return
	}
	doc, err := s.exporter.Export(r.Context(), *st.Post)
	if errors.Is(err, export.ErrUntrustedImageURL) {
		http.Error(w, "Post image is not hosted by this server", http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		slog.Error("Server.downloadHandler: export failed", "id", st.Post.ID, "error", err)
		http.Error(w, "Failed to build document", http.StatusBadGateway)
		return
	}
	writeDocx(w, doc)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusNotFound, "not_found.html", nil)
}
