package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// buildVersion is overridden at build time via -ldflags, the way dex's
// own version.Version is set by its release tooling.
var buildVersion = "dev"

func commandVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf(`salitad version: %s
Go version: %s
Go OS/ARCH: %s %s
`, buildVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
