// Package flow defines the purchase-order business flow: the fixed sequence
// of externally invoked test commands and how workspace config may adjust
// each of them.
package flow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/config"
	"github.com/devicelab-dev/bizflow-runner/pkg/core"
)

// Platform identifies the surface a step drives.
type Platform string

// Platform values.
const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
	PlatformLegacy Platform = "legacy"
)

// Step IDs of the fixed business sequence.
const (
	StepCreatePO       = "create-po"
	StepApprovePO      = "approve-po"
	StepGoodsReceipt   = "goods-receipt"
	StepRMQualityCheck = "rm-quality-check"
	StepBillPassing    = "bill-passing"
)

// Suite directories, relative to the workspace root.
const (
	WebSuiteDir    = "web-app-automation"
	MobileSuiteDir = "mobile-automation"
)

// Goods receipt depends on the approved PO reaching the mobile backend.
const (
	DefaultPropagationWait   = 60 * time.Second
	DefaultGoodsReceiptTries = 3
	DefaultGoodsReceiptDelay = 60 * time.Second
)

// RetryPolicy bounds re-attempts of a flaky step. Delay is fixed between
// attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Step is one business action backed by an external test command.
type Step struct {
	ID         string
	Name       string // Display name recorded in flow state
	Command    string // Opaque command line, run through the shell
	Dir        string // Working directory relative to the workspace root
	Platform   Platform
	WaitBefore time.Duration // Fixed wait before the first attempt
	Retry      *RetryPolicy  // nil = single attempt
}

// MaxAttempts returns the number of allowed invocations (1 without retry).
func (s Step) MaxAttempts() int {
	if s.Retry == nil || s.Retry.MaxAttempts < 1 {
		return 1
	}
	return s.Retry.MaxAttempts
}

// CommandLine is the full shell line run for the step from the workspace
// root. A non-empty Dir is entered first.
func (s Step) CommandLine() string {
	if s.Dir == "" {
		return s.Command
	}
	return "cd " + quoteDir(s.Dir) + " && " + s.Command
}

// quoteDir wraps dir in double quotes when it holds characters the shell
// would split on. Double quotes work for both sh and cmd.
func quoteDir(dir string) string {
	if strings.ContainsAny(dir, " \t'\"&|;<>()$`") {
		return `"` + dir + `"`
	}
	return dir
}

func playwright(spec string) string {
	return "npx playwright test " + spec + " --config=config/playwright.qa.config.ts"
}

// PurchaseOrder returns the default business sequence. The order is
// mandated by the business process: each step consumes state produced by
// the ones before it.
func PurchaseOrder() []Step {
	return []Step{
		{
			ID:       StepCreatePO,
			Name:     "Planner - Create PO",
			Command:  playwright("tests/planner/purchase/plan/purchaseorder.spec.ts"),
			Dir:      WebSuiteDir,
			Platform: PlatformWeb,
		},
		{
			ID:       StepApprovePO,
			Name:     "Planner - Approve PO",
			Command:  playwright("tests/planner/purchase/approval/po-approval.spec.ts"),
			Dir:      WebSuiteDir,
			Platform: PlatformWeb,
		},
		{
			ID:         StepGoodsReceipt,
			Name:       "Mobile - Goods Receipt",
			Command:    "npx wdio run config/wdio.qa.conf.ts",
			Dir:        MobileSuiteDir,
			Platform:   PlatformMobile,
			WaitBefore: DefaultPropagationWait,
			Retry: &RetryPolicy{
				MaxAttempts: DefaultGoodsReceiptTries,
				Delay:       DefaultGoodsReceiptDelay,
			},
		},
		{
			ID:       StepRMQualityCheck,
			Name:     "Planner - RM Quality Check",
			Command:  playwright("tests/planner/purchase/approval/rmQualityCheck.spec.ts"),
			Dir:      WebSuiteDir,
			Platform: PlatformWeb,
		},
		{
			ID:       StepBillPassing,
			Name:     "Legacy - Bill Passing",
			Command:  playwright("tests/legacy/billPassingDynamic.spec.ts"),
			Dir:      WebSuiteDir,
			Platform: PlatformLegacy,
		},
	}
}

// Build applies workspace overrides to the default sequence. Overrides can
// change how a step is invoked but never add, drop or reorder steps.
func Build(cfg *config.Config) ([]Step, error) {
	steps := PurchaseOrder()
	if cfg == nil || len(cfg.Steps) == 0 {
		return steps, nil
	}

	known := make(map[string]int, len(steps))
	for i, s := range steps {
		known[s.ID] = i
	}

	// Sorted so the first reported unknown ID is deterministic
	ids := make([]string, 0, len(cfg.Steps))
	for id := range cfg.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		i, ok := known[id]
		if !ok {
			return nil, core.ErrUnknownStep.WithMessage(fmt.Sprintf("unknown step %q in config", id))
		}
		if err := applyOverride(&steps[i], cfg.Steps[id]); err != nil {
			return nil, err
		}
	}

	return steps, nil
}

func applyOverride(s *Step, o config.StepOverride) error {
	if o.Command != "" {
		s.Command = o.Command
	}
	if o.Dir != nil {
		s.Dir = *o.Dir
	}
	if o.WaitBefore != nil {
		if o.WaitBefore.Std() < 0 {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s: waitBefore cannot be negative", s.ID))
		}
		s.WaitBefore = o.WaitBefore.Std()
	}
	if o.Retry != nil {
		if o.Retry.MaxAttempts < 1 {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s: retry.maxAttempts must be at least 1", s.ID))
		}
		if o.Retry.Delay.Std() < 0 {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("%s: retry.delay cannot be negative", s.ID))
		}
		s.Retry = &RetryPolicy{
			MaxAttempts: o.Retry.MaxAttempts,
			Delay:       o.Retry.Delay.Std(),
		}
	}
	return nil
}

// Find returns the step with the given ID.
func Find(steps []Step, id string) (Step, bool) {
	for _, s := range steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// HasPlatform reports whether any step targets p.
func HasPlatform(steps []Step, p Platform) bool {
	for _, s := range steps {
		if s.Platform == p {
			return true
		}
	}
	return false
}
