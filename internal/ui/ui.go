package ui

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/LimaAnalytica/cleaning-process/internal/endpoint"
	"github.com/LimaAnalytica/cleaning-process/internal/fault"
	"github.com/LimaAnalytica/cleaning-process/internal/selection"
	"github.com/LimaAnalytica/cleaning-process/internal/session"
)

//go:embed templates/*
var templatesFS embed.FS

type Options struct {
	AcceptedType string
	DownloadName string
}

type UI struct {
	sessions  *session.Manager
	templates *template.Template
	opts      Options
}

func NewUI(sessions *session.Manager, opts Options) *UI {
	tmpl := template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))
	return &UI{sessions: sessions, templates: tmpl, opts: opts}
}

func (u *UI) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(u.templates)
	page := router.Group("/", session.Middleware(u.sessions))
	page.GET("/", u.Home)
	page.POST("/select", u.Select)
	page.POST("/submit", u.Submit)
	page.POST("/reset", u.Reset)
}

// Home renders the current state of the caller's session.
func (u *UI) Home(c *gin.Context) { u.render(c, http.StatusOK, "") }

// Select takes the file from the picker form.
func (u *UI) Select(c *gin.Context) {
	wf, ok := session.FromContext(c)
	if !ok {
		u.render(c, http.StatusInternalServerError, "session unavailable")
		return
	}
	fh, err := c.FormFile(endpoint.FileField)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		log.Warn().Str("session_id", session.IDFromContext(c)).Err(err).Msg("invalid upload form")
		u.render(c, http.StatusBadRequest, "invalid upload")
		return
	}
	candidate, err := selection.FromMultipart(fh)
	if err != nil {
		u.render(c, http.StatusBadRequest, "could not read the selected file")
		return
	}
	if err := wf.Select(candidate); err != nil {
		u.renderFault(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Submit starts processing the pending file.
func (u *UI) Submit(c *gin.Context) {
	wf, ok := session.FromContext(c)
	if !ok {
		u.render(c, http.StatusInternalServerError, "session unavailable")
		return
	}
	if err := wf.Submit(); err != nil {
		u.renderFault(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Reset ends the session; the next page load starts a new one.
func (u *UI) Reset(c *gin.Context) {
	u.sessions.End(session.IDFromContext(c))
	session.ClearCookie(c)
	c.Redirect(http.StatusSeeOther, "/")
}

func (u *UI) renderFault(c *gin.Context, err error) {
	fe := fault.From(err, fault.Transport, "unexpected error")
	status := http.StatusConflict
	if fe.Category == fault.Validation {
		status = http.StatusUnprocessableEntity
	}
	u.render(c, status, fe.Message)
}

func (u *UI) render(c *gin.Context, status int, flash string) {
	wf, ok := session.FromContext(c)
	if !ok {
		c.String(http.StatusInternalServerError, "session unavailable")
		return
	}
	c.HTML(status, "page", Present(wf.Snapshot(), flash, u.opts.AcceptedType, u.opts.DownloadName))
}
