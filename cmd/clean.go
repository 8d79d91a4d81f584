package cmd

import (
	"github.com/spf13/cobra"

	"github.com/blitzdl/blitz/internal/output"
	"github.com/blitzdl/blitz/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Remove leftover temporary download files",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			if err := utils.Clean(path); err != nil {
				output.PrintError("Cleanup failed: " + err.Error())
				return
			}
			output.PrintSuccess("Removed temporary files under " + path)
		},
	}
}
