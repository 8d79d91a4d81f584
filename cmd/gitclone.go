package cmd

import (
	"github.com/spf13/cobra"

	"github.com/blitzdl/blitz/internal/utils"
)

func newGitCloneCmd() *cobra.Command {
	var outputPath string
	var depth int

	cmd := &cobra.Command{
		Use:   "gitclone [URL]",
		Short: "Clone a git repository",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job := utils.BlitzJob{
				JobType:     "gitclone",
				URL:         args[0],
				OutputPath:  outputPath,
				Connections: connections,
				RetryPolicy: globalRetryPolicy,
				Metadata: map[string]any{
					"depth": depth,
				},
			}
			runJobs([]utils.BlitzJob{job})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Target directory (inferred if not provided)")
	cmd.Flags().IntVar(&depth, "depth", 0, "Create a shallow clone with the given depth")
	return cmd
}
