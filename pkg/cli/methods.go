package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/session"
)

var methodsCommand = &cli.Command{
	Name:  "methods",
	Usage: "List the flutter: execute methods and their parameters",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCRIPT\tREQUIRED\tOPTIONAL")
		for _, name := range session.MethodNames() {
			m := session.ExecuteMethods[name]
			fmt.Fprintf(w, "%s%s\t%s\t%s\n",
				session.FlutterScriptPrefix, name,
				joinOrDash(m.Params.Required), joinOrDash(m.Params.Optional))
		}
		return w.Flush()
	},
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}
