package main

import (
	"fmt"
	"os"

	_ "github.com/hsauto/hsauto/drivers/console/ssh"
	_ "github.com/hsauto/hsauto/drivers/console/vsphere"
	"github.com/hsauto/hsauto/pkg/hsautoctl"
)

func main() {
	if err := hsautoctl.NewCommand(hsautoctl.NewFactory(), os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
