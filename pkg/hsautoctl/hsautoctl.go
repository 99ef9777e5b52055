// Package hsautoctl implements the hsauto command line
package hsautoctl

import (
	"io"

	"github.com/spf13/cobra"
)

// NewCommand Create a new hsauto command
func NewCommand(cmdFactory Factory, out io.Writer, errOut io.Writer) *cobra.Command {
	cmds := &cobra.Command{
		Use:           "hsauto",
		Short:         "hsauto drives installer consoles through an install plan",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmds.SetOut(out)
	cmds.SetErr(errOut)

	cmdFactory.BindFlags(cmds.PersistentFlags())

	cmds.AddCommand(
		newRunCommand(cmdFactory, out, errOut),
		newValidateCommand(cmdFactory, out),
		newVersionCommand(out),
	)
	return cmds
}
