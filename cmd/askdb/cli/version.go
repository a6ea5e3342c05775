package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// buildInfo is what 'askdb version' reports.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Built     string `json:"built"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// resolveBuildInfo fills fields the release ldflags left at their defaults
// from the module and VCS data Go embeds, as for 'go install' builds.
func resolveBuildInfo(version, commit, date string) buildInfo {
	info := buildInfo{
		Version:   version,
		Commit:    commit,
		Built:     date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if (info.Version == "" || info.Version == "dev") && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && (info.Commit == "" || info.Commit == "none"):
			info.Commit = s.Value
		case s.Key == "vcs.time" && (info.Built == "" || info.Built == "unknown"):
			info.Built = s.Value
		}
	}
	return info
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := resolveBuildInfo(version, commit, date)
			out := cmd.OutOrStdout()

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "askdb %s\n", info.Version)
			fmt.Fprintf(out, "  commit:  %s\n", info.Commit)
			fmt.Fprintf(out, "  built:   %s\n", info.Built)
			fmt.Fprintf(out, "  go:      %s\n", info.GoVersion)
			fmt.Fprintf(out, "  os/arch: %s/%s\n", info.OS, info.Arch)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
