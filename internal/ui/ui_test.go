package ui

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LimaAnalytica/cleaning-process/internal/endpoint"
	"github.com/LimaAnalytica/cleaning-process/internal/fault"
	"github.com/LimaAnalytica/cleaning-process/internal/result"
	"github.com/LimaAnalytica/cleaning-process/internal/selection"
	"github.com/LimaAnalytica/cleaning-process/internal/session"
	"github.com/LimaAnalytica/cleaning-process/internal/workflow"
)

func TestPresent(t *testing.T) {
	remote := result.NewRemoteURL("https://example/out.csv")
	handle := result.NewHandle([]byte("a\n"), "text/csv", "processed_dataset.csv")

	cases := []struct {
		name  string
		snap  workflow.Snapshot
		flash string
		want  View
	}{
		{
			name: "idle",
			snap: workflow.Snapshot{State: workflow.StateIdle},
			want: View{State: workflow.StateIdle, AcceptedType: "text/csv"},
		},
		{
			name: "ready",
			snap: workflow.Snapshot{State: workflow.StateReady, Pending: true, Artifact: "a.csv"},
			want: View{State: workflow.StateReady, ArtifactName: "a.csv", ProcessEnabled: true, AcceptedType: "text/csv"},
		},
		{
			name: "in flight",
			snap: workflow.Snapshot{State: workflow.StateInFlight, Pending: true, Artifact: "a.csv"},
			want: View{State: workflow.StateInFlight, ArtifactName: "a.csv", Processing: true, RefreshSeconds: refreshPeriod, AcceptedType: "text/csv"},
		},
		{
			name:  "in flight with rejected reselection",
			snap:  workflow.Snapshot{State: workflow.StateInFlight},
			flash: "please select a valid CSV file",
			want:  View{State: workflow.StateInFlight, Processing: true, RefreshSeconds: refreshPeriod, ErrorBanner: "please select a valid CSV file", AcceptedType: "text/csv"},
		},
		{
			name: "succeeded remote",
			snap: workflow.Snapshot{State: workflow.StateSucceeded, Pending: true, Artifact: "a.csv", Reference: remote},
			want: View{
				State: workflow.StateSucceeded, ArtifactName: "a.csv", ProcessEnabled: true,
				ShowSuccess: true, SuccessText: successText,
				ShowDownload: true, DownloadHref: "https://example/out.csv", DownloadName: "processed_dataset.csv", DownloadRemote: true,
				AcceptedType: "text/csv",
			},
		},
		{
			name: "succeeded in memory",
			snap: workflow.Snapshot{State: workflow.StateSucceeded, Reference: handle, Message: "cleaned"},
			want: View{
				State: workflow.StateSucceeded, ShowSuccess: true, SuccessText: "cleaned",
				ShowDownload: true, DownloadHref: handle.Href(), DownloadName: "processed_dataset.csv",
				AcceptedType: "text/csv",
			},
		},
		{
			name: "succeeded then rejected reselection",
			snap: workflow.Snapshot{State: workflow.StateSucceeded, Reference: remote, Rejection: fault.New(fault.Validation, "please select a valid CSV file")},
			want: View{
				State: workflow.StateSucceeded, ErrorBanner: "please select a valid CSV file",
				ShowSuccess: true, SuccessText: successText,
				ShowDownload: true, DownloadHref: "https://example/out.csv", DownloadName: "processed_dataset.csv", DownloadRemote: true,
				AcceptedType: "text/csv",
			},
		},
		{
			name: "succeeded without result",
			snap: workflow.Snapshot{State: workflow.StateSucceeded},
			want: View{State: workflow.StateSucceeded, ShowSuccess: true, SuccessText: successText, NoResultText: noResultText, AcceptedType: "text/csv"},
		},
		{
			name: "failed",
			snap: workflow.Snapshot{State: workflow.StateFailed, Pending: true, Artifact: "a.csv", Fault: fault.New(fault.Remote, "bad header row")},
			want: View{State: workflow.StateFailed, ArtifactName: "a.csv", ProcessEnabled: true, ErrorBanner: "bad header row", AcceptedType: "text/csv"},
		},
		{
			name:  "flash replaces banner",
			snap:  workflow.Snapshot{State: workflow.StateFailed, Fault: fault.New(fault.Remote, "bad header row")},
			flash: "no input selected",
			want:  View{State: workflow.StateFailed, ErrorBanner: "no input selected", AcceptedType: "text/csv"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Present(tc.snap, tc.flash, "text/csv", "processed_dataset.csv")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Present mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type stubProcessor struct{}

func (stubProcessor) Process(context.Context, selection.Artifact) (endpoint.Reply, error) {
	return endpoint.Reply{Kind: endpoint.ReplyBinary, Content: []byte("id\n1\n"), ContentType: "text/csv"}, nil
}

func newRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := session.NewManager(session.Options{Factory: func(ctx context.Context, id string) *workflow.Workflow {
		return workflow.New(workflow.Options{ID: id, Processor: stubProcessor{}, BaseContext: ctx})
	}})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.CloseAll(ctx)
	})
	r := gin.New()
	NewUI(m, Options{AcceptedType: "text/csv", DownloadName: "processed_dataset.csv"}).RegisterRoutes(r)
	return r, m
}

func selectRequest(t *testing.T, filename, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write([]byte("id\n1\n"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/select", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHomeRendersIdlePage(t *testing.T) {
	r, _ := newRouter(t)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Process dataset")
	assert.Contains(t, body, `type="submit" disabled`)
	assert.NotContains(t, body, "banner error")
}

func TestSelectSubmitDownloadFlow(t *testing.T) {
	r, m := newRouter(t)
	w := serve(r, selectRequest(t, "input.csv", "text/csv"), nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]

	w = serve(r, httptest.NewRequest(http.MethodPost, "/submit", nil), cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)

	wf, ok := m.Get(cookie.Value)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, wf.Wait(ctx))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	body := w.Body.String()
	assert.Contains(t, body, "Download processed dataset")
	assert.Contains(t, body, result.DownloadPathPrefix)
	assert.Contains(t, body, `download="processed_dataset.csv"`)
	assert.Contains(t, body, "Selected file: input.csv")
}

func TestSelectRejectsNonCSV(t *testing.T) {
	r, _ := newRouter(t)
	w := serve(r, selectRequest(t, "notes.txt", "text/plain"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, "banner error"))
	assert.Contains(t, body, "please select a valid CSV file")
}

func TestSubmitWithoutSelectionShowsBanner(t *testing.T) {
	r, _ := newRouter(t)
	w := serve(r, httptest.NewRequest(http.MethodPost, "/submit", nil), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "no input selected")
}

func TestResetClearsSession(t *testing.T) {
	r, m := newRouter(t)
	w := serve(r, selectRequest(t, "input.csv", "text/csv"), nil)
	cookie := w.Result().Cookies()[0]
	require.Equal(t, 1, m.Count())

	w = serve(r, httptest.NewRequest(http.MethodPost, "/reset", nil), cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Zero(t, m.Count())
}
