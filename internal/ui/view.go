package ui

import (
	"github.com/LimaAnalytica/cleaning-process/internal/result"
	"github.com/LimaAnalytica/cleaning-process/internal/workflow"
)

const (
	successText   = "Dataset processed successfully"
	noResultText  = "The server did not return a file to download."
	refreshPeriod = 2
)

// View is everything the page needs to render one workflow state.
type View struct {
	State          workflow.State
	ArtifactName   string
	ProcessEnabled bool
	Processing     bool
	RefreshSeconds int
	ErrorBanner    string
	ShowSuccess    bool
	SuccessText    string
	NoResultText   string
	ShowDownload   bool
	DownloadHref   string
	DownloadName   string
	// DownloadRemote marks links leaving this site.
	DownloadRemote bool
	AcceptedType   string
}

// Present maps a workflow snapshot to a View. flash is an error from the
// request being answered that the workflow did not retain; when set it is
// the most recent failure and replaces the state's banner.
func Present(s workflow.Snapshot, flash, acceptedType, downloadName string) View {
	v := View{
		State:          s.State,
		ArtifactName:   s.Artifact,
		ProcessEnabled: s.HasArtifact() && s.State != workflow.StateInFlight,
		Processing:     s.State == workflow.StateInFlight,
		ErrorBanner:    s.ErrorMessage(),
		AcceptedType:   acceptedType,
	}
	if v.Processing {
		v.RefreshSeconds = refreshPeriod
	}
	if flash != "" {
		v.ErrorBanner = flash
	}
	if s.State == workflow.StateSucceeded {
		v.ShowSuccess = true
		v.SuccessText = successText
		if s.Message != "" {
			v.SuccessText = s.Message
		}
		if s.Reference == nil {
			v.NoResultText = noResultText
		} else {
			v.ShowDownload = true
			v.DownloadHref = s.Reference.Href()
			v.DownloadRemote = s.Reference.Kind() == result.KindRemoteURL
			v.DownloadName = downloadName
			if h, ok := s.Reference.(*result.Handle); ok {
				v.DownloadName = h.Name()
			}
		}
	}
	return v
}
