package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hsauto/hsauto/drivers/console"
	"github.com/hsauto/hsauto/pkg/task"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var _ = Describe("Runner", func() {
	var (
		ctx    context.Context
		plan   *Plan
		runner *Runner
		target console.Target
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		plan, err = ParsePlan([]byte(installPlan))
		Expect(err).NotTo(HaveOccurred())
		runner = NewRunner(quietLogger())
		target = console.Target{Name: "hs-node1"}
	})

	Context("when every screen shows up", func() {
		It("passes every step in order", func() {
			fc := installConsole()
			report, err := runner.Run(ctx, plan, target, fc)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Passed()).To(BeTrue())
			Expect(report.RunID).NotTo(BeEmpty())
			Expect(report.Plan).To(Equal("hyperscale-install"))
			Expect(report.Target).To(Equal("hs-node1"))
			Expect(report.Steps).To(HaveLen(3))
			for _, s := range report.Steps {
				Expect(s.Status).To(Equal(StepPassed), s.Name)
				Expect(s.Tries).To(Equal(1), s.Name)
				Expect(s.Attempts).To(Equal(1), s.Name)
				Expect(s.Reason).To(BeEmpty(), s.Name)
			}
			Expect(report.Steps[2].Matched).To(Equal(task.Condition("shell")))
			Expect(fc.keysTyped()).To(Equal([]string{"<ENTER>", "root<TAB>secret<ENTER>"}))
			Expect(report.EndedAt).NotTo(BeTemporally("<", report.StartedAt))
		})
	})

	Context("when a screen never shows up", func() {
		It("repeats the action and aborts the rest of the plan", func() {
			fc := installConsole()
			delete(fc.next, "<ENTER>")

			report, err := runner.Run(ctx, plan, target, fc)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(RunFailed))
			Expect(report.Steps).To(HaveLen(3))

			boot := report.Steps[1]
			Expect(boot.Status).To(Equal(StepFailed))
			Expect(boot.Tries).To(Equal(2))
			Expect(boot.Attempts).To(Equal(6))
			Expect(boot.Matched).To(Equal(task.None))
			Expect(boot.Reason).To(ContainSubstring("after 3 attempt(s)"))
			Expect(report.Steps[2].Status).To(Equal(StepSkipped))
			Expect(fc.keysTyped()).To(Equal([]string{"<ENTER>", "<ENTER>"}))
		})

		It("runs the next step when the step continues on failure", func() {
			plan.Steps[1].OnFailure = FailContinue
			fc := installConsole()
			fc.next["<ENTER>"] = "boot menu"
			fc.next["root<TAB>secret<ENTER>"] = "shell"

			report, err := runner.Run(ctx, plan, target, fc)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(RunFailed))
			Expect(report.Steps[1].Status).To(Equal(StepFailed))
			Expect(report.Steps[2].Status).To(Equal(StepPassed))
		})
	})

	Context("when a failure screen shows up", func() {
		It("stops waiting and fails the step", func() {
			fc := installConsole()
			fc.next["<ENTER>"] = "install error"

			report, err := runner.Run(ctx, plan, target, fc)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(RunFailed))

			boot := report.Steps[1]
			Expect(boot.Status).To(Equal(StepFailed))
			Expect(boot.Matched).To(Equal(task.Condition("install-error")))
			Expect(boot.Attempts).To(Equal(2))
			Expect(boot.Reason).To(Equal(`failure screen "install-error" observed`))
		})
	})

	Context("when the console fails", func() {
		It("aborts the run with the action error", func() {
			fc := installConsole()
			fc.actErr = errors.New("connection reset")

			report, err := runner.Run(ctx, plan, target, fc)
			Expect(err).To(MatchError(ContainSubstring("step power-on: connection reset")))
			Expect(report.Status).To(Equal(RunAborted))
			Expect(report.Error).To(ContainSubstring("connection reset"))
			Expect(report.Steps).To(HaveLen(3))
			Expect(report.Steps[0].Status).To(Equal(StepFailed))
			Expect(report.Steps[0].Attempts).To(BeZero())
			Expect(report.Steps[1].Status).To(Equal(StepSkipped))
		})

		It("aborts the run when two screens match one frame", func() {
			plan.Screens = append(plan.Screens, console.Screen{Name: "menu", Patterns: []string{`menu`}})
			Expect(plan.Validate()).To(Succeed())

			report, err := runner.Run(ctx, plan, target, installConsole())
			var ambiguous *console.ErrAmbiguousScreen
			Expect(errors.As(err, &ambiguous)).To(BeTrue())
			Expect(report.Status).To(Equal(RunAborted))
		})
	})

	Context("when the run is cancelled", func() {
		It("returns the context error", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			report, err := runner.Run(cctx, plan, target, installConsole())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(report.Status).To(Equal(RunAborted))
		})
	})

	Context("with metrics", func() {
		It("counts steps by status", func() {
			reg := prometheus.NewRegistry()
			runner = NewRunner(quietLogger(), WithMetrics(NewMetrics(reg)))
			fc := installConsole()
			delete(fc.next, "<ENTER>")

			_, err := runner.Run(ctx, plan, target, fc)
			Expect(err).NotTo(HaveOccurred())

			m := runner.metrics
			Expect(testutil.ToFloat64(m.steps.WithLabelValues(plan.Name, "power-on", "passed"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.steps.WithLabelValues(plan.Name, "boot", "failed"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.steps.WithLabelValues(plan.Name, "login", "skipped"))).To(Equal(1.0))

			path := filepath.Join(GinkgoT().TempDir(), "hsauto.prom")
			Expect(WriteMetrics(path, reg)).To(Succeed())
			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("hsauto_steps_total"))
			Expect(string(data)).To(ContainSubstring("hsauto_step_attempts_bucket"))
		})
	})
})

var _ = Describe("RunAll", func() {
	var (
		plan      *Plan
		consoles  map[string]*fakeConsole
		newDriver DriverFactory
	)

	BeforeEach(func() {
		var err error
		plan, err = ParsePlan([]byte(installPlan))
		Expect(err).NotTo(HaveOccurred())

		consoles = map[string]*fakeConsole{}
		for i := 1; i <= 4; i++ {
			consoles[fmt.Sprintf("hs-node%d", i)] = installConsole()
		}
		newDriver = func(t console.Target) (console.Driver, error) {
			fc, ok := consoles[t.Name]
			if !ok {
				return nil, fmt.Errorf("no console for %s", t.Name)
			}
			return fc, nil
		}
	})

	targets := func(names ...string) []console.Target {
		var ts []console.Target
		for _, n := range names {
			ts = append(ts, console.Target{Name: n})
		}
		return ts
	}

	It("drives every target and keeps the target order", func() {
		runner := NewRunner(quietLogger(), WithParallelism(2))
		reports, err := runner.RunAll(context.Background(), plan, targets("hs-node1", "hs-node2", "hs-node3", "hs-node4"), newDriver)
		Expect(err).NotTo(HaveOccurred())
		Expect(reports).To(HaveLen(4))
		for i, r := range reports {
			Expect(r.Target).To(Equal(fmt.Sprintf("hs-node%d", i+1)))
			Expect(r.Passed()).To(BeTrue())
		}
		for name, fc := range consoles {
			Expect(fc.inited).To(BeTrue(), name)
			Expect(fc.closed).To(BeTrue(), name)
		}
	})

	It("does not let one target stop the others", func() {
		consoles["hs-node2"].initErr = errors.New("login refused")

		runner := NewRunner(quietLogger())
		reports, err := runner.RunAll(context.Background(), plan, targets("hs-node1", "hs-node2", "hs-node3", "hs-missing"), newDriver)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("hs-node2: login refused"))
		Expect(err.Error()).To(ContainSubstring("hs-missing: no console for hs-missing"))

		Expect(reports[0].Passed()).To(BeTrue())
		Expect(reports[1].Status).To(Equal(RunAborted))
		Expect(reports[1].Steps).To(HaveLen(3))
		Expect(reports[1].Steps[0].Status).To(Equal(StepSkipped))
		Expect(reports[2].Passed()).To(BeTrue())
		Expect(reports[3].Status).To(Equal(RunAborted))
		Expect(consoles["hs-node2"].closed).To(BeTrue())
	})

	It("rejects an invalid plan before connecting", func() {
		plan.Steps[0].Expect = []task.Condition{"grub"}
		runner := NewRunner(quietLogger())
		_, err := runner.RunAll(context.Background(), plan, targets("hs-node1"), newDriver)
		Expect(err).To(MatchError(ContainSubstring(`unknown screen "grub"`)))
		Expect(consoles["hs-node1"].inited).To(BeFalse())
	})

	It("finishes within the step budgets when screens never show up", func() {
		for _, fc := range consoles {
			fc.next = map[string]string{}
		}
		runner := NewRunner(quietLogger())
		start := time.Now()
		reports, err := runner.RunAll(context.Background(), plan, targets("hs-node1", "hs-node2"), newDriver)
		Expect(err).NotTo(HaveOccurred())
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		for _, r := range reports {
			Expect(r.Status).To(Equal(RunFailed))
			Expect(strings.Join([]string{string(r.Steps[0].Status), string(r.Steps[1].Status)}, ",")).To(Equal("failed,skipped"))
		}
	})
})
