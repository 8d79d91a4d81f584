package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/blitzdl/blitz/internal/utils"
)

// BatchFile maps a job type section to its download entries, eg.
//
//	http:
//	  - link: https://example.com/big.iso
//	    op: big.iso
//	s3:
//	  - link: s3://bucket/key
type BatchFile map[string][]utils.DownloadEntry

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading YAML file: %v\n", err)
				os.Exit(1)
			}
			var batchFile BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing YAML file: %v\n", err)
				os.Exit(1)
			}
			jobs := buildJobsFromBatch(batchFile)
			if len(jobs) == 0 {
				fmt.Fprintf(os.Stderr, "No valid jobs found in the batch file\n")
				os.Exit(1)
			}
			runJobs(jobs)
		},
	}
	return cmd
}

func buildJobsFromBatch(batchFile BatchFile) []utils.BlitzJob {
	var jobs []utils.BlitzJob
	for sectionType, entries := range batchFile {
		for _, entry := range entries {
			// A per-entry type overrides the section it sits under
			jobType := normalizeJobType(sectionType)
			if entry.Type != "" {
				jobType = normalizeJobType(entry.Type)
			}
			if jobType == "" {
				fmt.Fprintf(os.Stderr, "Warning: Unknown job type '%s', skipping...\n", sectionType)
				continue
			}
			if entry.URL == "" {
				fmt.Fprintf(os.Stderr, "Warning: Empty link found in %s section, skipping...\n", sectionType)
				continue
			}
			job := utils.BlitzJob{
				JobType:          jobType,
				URL:              entry.URL,
				OutputPath:       entry.OutputPath,
				Connections:      connections,
				RetryPolicy:      globalRetryPolicy,
				HTTPClientConfig: globalHTTPConfig,
				Metadata:         make(map[string]any),
			}
			switch jobType {
			case "s3":
				job.Metadata["profile"] = ""
			case "gitclone":
				job.Metadata["depth"] = 0
			}
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func normalizeJobType(jobType string) string {
	switch strings.ToLower(jobType) {
	case "http", "https":
		return "http"
	case "s3":
		return "s3"
	case "git", "gitclone", "git-clone":
		return "gitclone"
	}
	return ""
}
