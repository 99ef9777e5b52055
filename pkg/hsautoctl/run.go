package hsautoctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hsauto/hsauto/drivers/console"
	"github.com/hsauto/hsauto/pkg/config"
	"github.com/hsauto/hsauto/pkg/email"
	"github.com/hsauto/hsauto/pkg/installer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultDriver = "vsphere"

// newSender is replaced in tests
var newSender = email.NewSender

type runOptions struct {
	planPath    string
	targets     []string
	driver      string
	parallelism int
	timeout     time.Duration
	noMail      bool
}

// newRunCommand prints reports to out and logs to errOut
func newRunCommand(cmdFactory Factory, out, errOut io.Writer) *cobra.Command {
	o := &runOptions{}
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "Run an install plan against one or more targets",
		Example: `  hsauto run --plan hyperscale-install.yaml --target hs-node1 --target hs-node2=hs-vm-02
  hsauto run --driver ssh --plan upgrade.yaml --target hs-node1@10.0.0.11,10.0.1.11`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return o.run(c.Context(), cmdFactory, out, errOut)
		},
	}
	runCommand.Flags().StringVarP(&o.planPath, "plan", "p", "", "Path of the install plan")
	runCommand.Flags().StringArrayVarP(&o.targets, "target", "t", nil, "Target as NAME[=VM][@ADDR[,ADDR...]]. Repeat for more targets.")
	runCommand.Flags().StringVarP(&o.driver, "driver", "d", defaultDriver, "Console driver: vsphere or ssh")
	runCommand.Flags().IntVar(&o.parallelism, "parallelism", 0, "Targets driven at once, 0 for all")
	runCommand.Flags().DurationVar(&o.timeout, "timeout", 0, "Bound for the whole run, 0 for none")
	runCommand.Flags().BoolVar(&o.noMail, "no-mail", false, "Do not mail the report even if SMTP is configured")
	_ = runCommand.MarkFlagRequired("plan")
	return runCommand
}

func (o *runOptions) run(ctx context.Context, cmdFactory Factory, out, errOut io.Writer) error {
	plan, err := installer.LoadPlan(o.planPath)
	if err != nil {
		return err
	}
	targets, err := parseTargets(o.targets)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	format, err := cmdFactory.GetOutputFormat()
	if err != nil {
		return err
	}
	cfg, err := cmdFactory.GetConfig()
	if err != nil {
		return err
	}
	log := cmdFactory.GetLogger(cfg, errOut)

	newConsole, err := console.Get(o.driver)
	if err != nil {
		return err
	}

	unlock, err := lockTargets(cfg.LockDir, targets)
	if err != nil {
		return err
	}
	defer unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	runner := installer.NewRunner(log,
		installer.WithMetrics(installer.NewMetrics(reg)),
		installer.WithParallelism(o.parallelism),
	)
	log.Infof("Running plan %s on %d target(s) with the %s driver", plan.Name, len(targets), o.driver)
	reports, runErr := runner.RunAll(ctx, plan, targets, func(t console.Target) (console.Driver, error) {
		return newConsole(cfg, log.WithField("target", t.Name))
	})

	if err := printReports(out, format, reports); err != nil {
		log.Errorf("Failed to print reports: %v", err)
	}
	if cfg.MetricsFile != "" {
		if err := installer.WriteMetrics(cfg.MetricsFile, reg); err != nil {
			log.Errorf("Failed to write metrics to %s: %v", cfg.MetricsFile, err)
		}
	}
	if cfg.SMTP.Enabled() && !o.noMail {
		mailReports(cfg.SMTP, plan.Name, reports, log)
	}

	if runErr != nil {
		return runErr
	}
	failed := 0
	for _, r := range reports {
		if !r.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("plan %s failed on %d of %d targets", plan.Name, failed, len(reports))
	}
	return nil
}

func mailReports(cfg config.SMTP, plan string, reports []*installer.RunReport, log logrus.FieldLogger) {
	e, err := email.RunReport(cfg, plan, reports)
	if err != nil {
		log.Errorf("Failed to prepare email body: %v", err)
		return
	}
	if err := e.SendEmail(newSender(cfg)); err != nil {
		log.Errorf("Failed to send out email: %v", err)
		return
	}
	log.Infof("Mailed report to %v", cfg.To)
}
