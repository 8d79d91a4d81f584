package cmd

import (
	"github.com/spf13/cobra"

	"github.com/blitzdl/blitz/internal/utils"
)

func newHTTPJob(url, outputPath string) utils.BlitzJob {
	return utils.BlitzJob{
		JobType:          "http",
		URL:              url,
		OutputPath:       outputPath,
		Connections:      connections,
		RetryPolicy:      globalRetryPolicy,
		HTTPClientConfig: globalHTTPConfig,
		Metadata:         make(map[string]any),
	}
}

func newHTTPCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "http [URL]",
		Short: "Download a file via HTTP/HTTPS",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runJobs([]utils.BlitzJob{newHTTPJob(args[0], outputPath)})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred if not provided)")
	return cmd
}
