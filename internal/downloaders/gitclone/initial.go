package gitclone

import (
	"fmt"
	"strings"

	"github.com/blitzdl/blitz/internal/utils"
)

type GitCloneDownloader struct{}

func (d *GitCloneDownloader) ValidateJob(job *utils.BlitzJob) error {
	cloneURL := job.URL
	if !strings.HasPrefix(cloneURL, "https://") && !strings.HasPrefix(cloneURL, "http://") && !strings.HasPrefix(cloneURL, "git@") {
		return fmt.Errorf("unsupported clone URL: %s", cloneURL)
	}
	job.Metadata["cloneURL"] = cloneURL
	return nil
}

func (d *GitCloneDownloader) BuildJob(job *utils.BlitzJob) error {
	if job.OutputPath == "" {
		cloneURL := job.Metadata["cloneURL"].(string)
		name := strings.TrimSuffix(cloneURL[strings.LastIndex(cloneURL, "/")+1:], ".git")
		if name == "" {
			return fmt.Errorf("cannot infer directory name from %s", cloneURL)
		}
		job.OutputPath = name
	}
	return nil
}
