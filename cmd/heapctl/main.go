// heapctl exercises a protoheap heap from the command line: it runs the
// reference scenarios, stresses independent heaps in parallel, and takes,
// stores and compares heap snapshots.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"golang.org/x/term"

	"github.com/chazu/protoheap/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("protoheap.heapctl")

// app holds the state shared by every subcommand.
type app struct {
	configDir string
	colorMode string
	logLevel  string

	manifest *manifest.Manifest
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "heapctl",
		Short:         "Drive and inspect protoheap heaps",
		Long:          `heapctl runs heap scenarios and stress workloads, and manages heap snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config", ".", "directory to search upward for "+manifest.FileName)
	root.PersistentFlags().StringVar(&a.colorMode, "color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newScenarioCmd(a))
	root.AddCommand(newStressCmd(a))
	root.AddCommand(newSnapshotCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

// setup loads the configuration and applies the logging and color
// settings.
func (a *app) setup() error {
	m, err := manifest.FindAndLoad(a.configDir)
	if err != nil {
		return err
	}
	if m == nil {
		m = manifest.Default()
	}
	if a.logLevel != "" {
		m.Log.Level = a.logLevel
		if err := m.Validate(); err != nil {
			return err
		}
	}
	a.manifest = m
	commonlog.Configure(m.Log.Verbosity(), m.LogPath())

	switch a.colorMode {
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("unsupported color mode %q (must be auto, on or off)", a.colorMode)
	}
	return nil
}

// isTerminal reports whether f is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failColor.Sprint("error:"), err)
		os.Exit(1)
	}
}
