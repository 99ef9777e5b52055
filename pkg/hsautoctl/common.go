package hsautoctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hsauto/hsauto/drivers/console"
	"github.com/hsauto/hsauto/pkg/installer"
	"gopkg.in/yaml.v2"
)

func printMsg(msg string, out io.Writer) {
	if _, printErr := fmt.Fprintln(out, msg); printErr != nil {
		fmt.Println(msg)
	}
}

// parseTarget reads NAME[=VM][@ADDR[,ADDR...]]
func parseTarget(s string) (console.Target, error) {
	var t console.Target
	rest := s
	if i := strings.Index(rest, "@"); i >= 0 {
		for _, a := range strings.Split(rest[i+1:], ",") {
			if a = strings.TrimSpace(a); a != "" {
				t.Addresses = append(t.Addresses, a)
			}
		}
		if len(t.Addresses) == 0 {
			return t, fmt.Errorf("invalid target %q: no address after @", s)
		}
		rest = rest[:i]
	}
	if i := strings.Index(rest, "="); i >= 0 {
		t.VMName = rest[i+1:]
		if t.VMName == "" {
			return t, fmt.Errorf("invalid target %q: empty VM name", s)
		}
		rest = rest[:i]
	}
	t.Name = rest
	if t.Name == "" {
		return t, fmt.Errorf("invalid target %q: empty name", s)
	}
	return t, nil
}

func parseTargets(specs []string) ([]console.Target, error) {
	seen := make(map[string]bool, len(specs))
	targets := make([]console.Target, 0, len(specs))
	for _, s := range specs {
		t, err := parseTarget(s)
		if err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("target %s given twice", t.Name)
		}
		seen[t.Name] = true
		targets = append(targets, t)
	}
	return targets, nil
}

func printReports(out io.Writer, format string, reports []*installer.RunReport) error {
	switch format {
	case outputFormatJSON:
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		printMsg(string(data), out)
	case outputFormatYaml:
		data, err := yaml.Marshal(reports)
		if err != nil {
			return err
		}
		printMsg(string(data), out)
	default:
		w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "TARGET\tSTEP\tSTATUS\tSCREEN\tTRIES\tATTEMPTS\tDURATION\tREASON")
		for _, r := range reports {
			if r == nil {
				continue
			}
			for _, s := range r.Steps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%v\t%s\n",
					r.Target, s.Name, s.Status, s.Matched, s.Tries, s.Attempts, s.Duration.Round(time.Millisecond), s.Reason)
			}
		}
		return w.Flush()
	}
	return nil
}
