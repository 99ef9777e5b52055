package version

import (
	"fmt"
	"runtime"
)

// Version will be overridden with the current version at build time using the -X linker flag
var Version string

// GitSHA is the commit the binary was built from, set with -X
var GitSHA string

// String returns the version line printed by the CLI
func String() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if GitSHA != "" {
		v = fmt.Sprintf("%s-%s", v, GitSHA)
	}
	return fmt.Sprintf("%s (%s %s/%s)", v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
