package cmd

import (
	"github.com/spf13/cobra"

	"github.com/blitzdl/blitz/internal/utils"
)

func newS3Cmd() *cobra.Command {
	var outputPath string
	var profile string

	cmd := &cobra.Command{
		Use:   "s3 [s3://BUCKET/KEY]",
		Short: "Download an object or prefix from S3",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job := utils.BlitzJob{
				JobType:     "s3",
				URL:         args[0],
				OutputPath:  outputPath,
				Connections: connections,
				RetryPolicy: globalRetryPolicy,
				Metadata: map[string]any{
					"profile": profile,
				},
			}
			runJobs([]utils.BlitzJob{job})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file or directory path")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS shared config profile")
	return cmd
}
