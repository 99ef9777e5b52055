package hsautoctl

import (
	"fmt"
	"io"

	"github.com/hsauto/hsauto/pkg/installer"
	"github.com/spf13/cobra"
)

func newValidateCommand(cmdFactory Factory, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan.yaml>...",
		Short: "Check install plans without connecting to any target",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			for _, path := range args {
				plan, err := installer.LoadPlan(path)
				if err != nil {
					return err
				}
				printMsg(fmt.Sprintf("Plan %s is valid: %d screens, %d steps", plan.Name, len(plan.Screens), len(plan.Steps)), out)
			}
			return nil
		},
	}
}
