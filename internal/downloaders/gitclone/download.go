package gitclone

import (
	"fmt"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/utils"
)

// cloneProgress forwards go-git sideband progress lines to the job's
// stream callback.
type cloneProgress struct {
	streamFunc func(string)
}

func (p *cloneProgress) Write(data []byte) (int, error) {
	message := strings.TrimSpace(string(data))
	if message != "" && p.streamFunc != nil {
		p.streamFunc(message)
	}
	return len(data), nil
}

func (d *GitCloneDownloader) Download(job *utils.BlitzJob) error {
	cloneURL := job.Metadata["cloneURL"].(string)
	depth, _ := job.Metadata["depth"].(int)

	cloneOptions := &git.CloneOptions{
		URL:      cloneURL,
		Progress: &cloneProgress{streamFunc: job.StreamFunc},
	}
	if auth := tokenAuth(); auth != nil {
		cloneOptions.Auth = auth
	}
	if depth > 0 {
		cloneOptions.Depth = depth
	}

	log.Info().Str("op", "gitclone/download").Msgf("Cloning %s", cloneURL)
	if _, err := git.PlainClone(job.OutputPath, false, cloneOptions); err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

// tokenAuth picks up a token from the environment for private HTTPS
// remotes; anonymous clone otherwise.
func tokenAuth() *githttp.BasicAuth {
	for _, key := range []string{"GITHUB_TOKEN", "GIT_TOKEN"} {
		if token := os.Getenv(key); token != "" {
			return &githttp.BasicAuth{Username: "git", Password: token}
		}
	}
	return nil
}
