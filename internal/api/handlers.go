package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/LimaAnalytica/cleaning-process/internal/endpoint"
	"github.com/LimaAnalytica/cleaning-process/internal/fault"
	"github.com/LimaAnalytica/cleaning-process/internal/result"
	"github.com/LimaAnalytica/cleaning-process/internal/selection"
	"github.com/LimaAnalytica/cleaning-process/internal/session"
	"github.com/LimaAnalytica/cleaning-process/internal/workflow"
)

type stateResponse struct {
	SessionID     string         `json:"session_id"`
	State         workflow.State `json:"state"`
	Artifact      string         `json:"artifact,omitempty"`
	DownloadURL   string         `json:"download_url,omitempty"`
	DownloadKind  result.Kind    `json:"download_kind,omitempty"`
	ResultMissing bool           `json:"result_missing,omitempty"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCategory fault.Category `json:"error_category,omitempty"`
}

type API struct {
	sessions *session.Manager
}

func NewAPI(sessions *session.Manager) *API {
	return &API{sessions: sessions}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	existing := session.Lookup(a.sessions)
	router.GET(result.DownloadPathPrefix+":id", existing, a.Download)

	bind := session.Middleware(a.sessions)
	api := router.Group("/api/v1")
	{
		api.GET("/session", bind, a.GetState)
		api.POST("/session/artifact", bind, a.SelectArtifact)
		api.POST("/session/submit", bind, a.Submit)
		api.DELETE("/session", existing, a.EndSession)
	}
}

// GetState returns the workflow state of the caller's session
func (a *API) GetState(c *gin.Context) {
	wf, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	c.JSON(http.StatusOK, toStateResponse(session.IDFromContext(c), wf.Snapshot()))
}

// SelectArtifact validates the uploaded file and makes it the pending input
func (a *API) SelectArtifact(c *gin.Context) {
	wf, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	id := session.IDFromContext(c)
	candidate, err := candidateFromRequest(c)
	if err != nil {
		log.Warn().Str("session_id", id).Err(err).Msg("invalid upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload"})
		return
	}
	if err := wf.Select(candidate); err != nil {
		c.JSON(statusFor(err), errorResponse(err))
		return
	}
	c.JSON(http.StatusOK, toStateResponse(id, wf.Snapshot()))
}

// Submit dispatches the pending input to the processing endpoint
func (a *API) Submit(c *gin.Context) {
	wf, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	if err := wf.Submit(); err != nil {
		c.JSON(statusFor(err), errorResponse(err))
		return
	}
	c.JSON(http.StatusAccepted, toStateResponse(session.IDFromContext(c), wf.Snapshot()))
}

// EndSession tears the caller's session down
func (a *API) EndSession(c *gin.Context) {
	a.sessions.End(session.IDFromContext(c))
	session.ClearCookie(c)
	c.Status(http.StatusNoContent)
}

// Download serves the in-memory result of the caller's session
func (a *API) Download(c *gin.Context) {
	wf, ok := session.FromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	id := c.Param("id")
	h, ok := wf.Handle(id)
	if !ok {
		log.Warn().Str("session_id", session.IDFromContext(c)).Str("result_id", id).Msg("result not found on download")
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	content, err := h.Bytes()
	if errors.Is(err, result.ErrReleased) {
		c.JSON(http.StatusGone, gin.H{"error": "result no longer available"})
		return
	}
	c.Header("Content-Disposition", contentDisposition(h.Name()))
	c.Data(http.StatusOK, h.ContentType(), content)
}

func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func candidateFromRequest(c *gin.Context) (*selection.Candidate, error) {
	fh, err := c.FormFile(endpoint.FileField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return selection.FromMultipart(fh)
}

func statusFor(err error) int {
	switch fault.CategoryOf(err) {
	case fault.Validation:
		return http.StatusUnprocessableEntity
	case fault.Precondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) gin.H {
	fe := fault.From(err, "", "unexpected error")
	return gin.H{"error": fe.Message, "error_category": fe.Category}
}

func toStateResponse(id string, s workflow.Snapshot) stateResponse {
	resp := stateResponse{
		SessionID:     id,
		State:         s.State,
		Artifact:      s.Artifact,
		ResultMissing: s.ResultMissing(),
		Message:       s.Message,
		Error:         s.ErrorMessage(),
	}
	if s.Reference != nil {
		resp.DownloadURL = s.Reference.Href()
		resp.DownloadKind = s.Reference.Kind()
	}
	if fe := s.CurrentFault(); fe != nil {
		resp.ErrorCategory = fe.Category
	}
	return resp
}
