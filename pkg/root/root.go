package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cachely",
	Short: "Cachely object cache CLI",
	Long: `Operate a cachely object cache from the command line: read, write and
invalidate entries, and run the scheduled expiry sweep.`,
	SilenceUsage: true,
}

// SetInfo overrides the name and descriptions of the root command.
func SetInfo(use, short, long string) {
	rootCmd.Use = use
	rootCmd.Short = short
	rootCmd.Long = long
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func GetRoot() *cobra.Command {
	return rootCmd
}
