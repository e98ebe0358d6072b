package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionLine(version.Get()))
	},
}

// versionLine formats v as "claudemix v0.2.0". A tag that already starts
// with v keeps a single one.
func versionLine(v string) string {
	return "claudemix v" + strings.TrimPrefix(v, "v")
}
