package hsautoctl

import (
	"fmt"
	"io"

	"github.com/hsauto/hsauto/pkg/version"
	"github.com/spf13/cobra"
)

func newVersionCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of hsauto",
		Run: func(cmd *cobra.Command, args []string) {
			printMsg(fmt.Sprintf("hsauto Version: %v", version.String()), out)
		},
	}
}
