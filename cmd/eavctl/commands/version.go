package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/internal/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show eavctl version information",
	Long:  `Display version, build time, commit hash, and platform information for the eavctl binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if shouldOutputJSON(cmd) {
			return outputJSON(version.Get())
		}
		info := version.Get()
		fmt.Println(info.String())
		fmt.Printf("Platform: %s\n", info.Platform)
		fmt.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
