package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexmode/internal/output"
	"github.com/Aman-CERP/indexmode/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput, verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including git commit, build date, and Go version.

Commit and build date come from release ldflags, or from the VCS stamp of a
plain "go build" when those are absent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			switch {
			case shortOutput:
				_, err := fmt.Fprintln(w, version.Short())
				return err
			case jsonOutput:
				return writeJSON(w, version.GetInfo())
			case verbose:
				info := version.GetInfo()
				output.New(w).Fields(map[string]string{
					"version":  info.Version,
					"commit":   info.Commit,
					"built":    info.Date,
					"modified": strconv.FormatBool(info.Modified),
					"go":       info.GoVersion,
					"platform": info.OS + "/" + info.Arch,
				})
				return nil
			}
			_, err := fmt.Fprintln(w, version.String())
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "List each build field on its own line")
	cmd.MarkFlagsMutuallyExclusive("json", "short", "verbose")

	return cmd
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
