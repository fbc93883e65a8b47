package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LimaAnalytica/cleaning-process/internal/workflow"
)

const (
	CookieName = "csvproc_session"

	ctxKeyID       = "session.id"
	ctxKeyWorkflow = "session.workflow"
)

// Middleware binds each request to its session, starting one when the
// cookie is missing or stale.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(CookieName)
		id, wf, created := m.Resolve(cookie)
		if created || cookie != id {
			setCookie(c, id)
		}
		c.Set(ctxKeyID, id)
		c.Set(ctxKeyWorkflow, wf)
		c.Next()
	}
}

// Lookup binds the request to an existing session only. Requests without a
// live session are answered with 404 and no session is started.
func Lookup(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(CookieName)
		wf, ok := m.Get(cookie)
		if cookie == "" || !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.Set(ctxKeyID, cookie)
		c.Set(ctxKeyWorkflow, wf)
		c.Next()
	}
}

// FromContext returns the workflow bound by Middleware.
func FromContext(c *gin.Context) (*workflow.Workflow, bool) {
	v, ok := c.Get(ctxKeyWorkflow)
	if !ok {
		return nil, false
	}
	wf, ok := v.(*workflow.Workflow)
	return wf, ok
}

// IDFromContext returns the session id bound by Middleware.
func IDFromContext(c *gin.Context) string {
	return c.GetString(ctxKeyID)
}

// ClearCookie makes the browser forget its session.
func ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
}

func setCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, id, 0, "/", "", false, true)
}
