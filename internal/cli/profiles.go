package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/ciload/internal/loadgen"
	"github.com/wesleyorama2/ciload/loadtest"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in user profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := builtinRegistry()
		if err != nil {
			return err
		}
		return listProfiles(cmd.OutOrStdout(), registry)
	},
}

// builtinRegistry registers the shipped profiles with their targets read
// from the environment.
func builtinRegistry() (*loadgen.Registry, error) {
	profiles, err := loadtest.BuiltinProfiles()
	if err != nil {
		return nil, err
	}
	return loadgen.NewRegistry(profiles...)
}

func listProfiles(w io.Writer, registry *loadgen.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROFILE\tHOST\tWAIT")
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", name, orDash(loadgen.DefaultHost(p)), describeWait(p))
	}
	return tw.Flush()
}

func describeWait(p loadgen.Profile) string {
	b, ok := p.(loadgen.WaitBounder)
	if !ok {
		return "-"
	}
	lo, hi := b.WaitBounds()
	if lo == hi {
		return lo.String()
	}
	return fmt.Sprintf("%s-%s", lo.Round(time.Millisecond), hi.Round(time.Millisecond))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
