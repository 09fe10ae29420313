package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/isdmx/runbox/admission"
	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/registry"
	"github.com/isdmx/runbox/sandbox"
)

// Status classifies the outcome of one execution. Exactly one status is
// assigned per request.
type Status string

const (
	StatusSuccess            Status = "Success"
	StatusRuntimeError       Status = "RuntimeError"
	StatusCompileError       Status = "CompileError"
	StatusTimedOut           Status = "TimedOut"
	StatusSandboxUnavailable Status = "SandboxUnavailable"
	StatusUnknownLanguage    Status = "UnknownLanguage"
	StatusAdmissionTimeout   Status = "AdmissionTimeout"
)

// destroyTimeout bounds the teardown attempt so a wedged runtime cannot
// pin a request goroutine forever.
const destroyTimeout = 30 * time.Second

// truncationMarker is appended to output cut at the capture cap.
const truncationMarker = "\n[output truncated]"

// Request is one code execution submission.
type Request struct {
	Code     string
	Language string
}

// Result is the classified outcome of one execution. ExitCode is nil
// when the process was killed rather than exiting on its own.
type Result struct {
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode *int
	Elapsed  time.Duration
}

// ElapsedMS returns the elapsed wall-clock time in milliseconds.
func (r Result) ElapsedMS() int64 {
	return r.Elapsed.Milliseconds()
}

// Orchestrator drives one sandbox through its full lifecycle per
// request: resolve profile, acquire a slot, provision, inject, compile
// when the profile asks for it, run, classify, and tear down. Teardown
// runs on every path once provisioning succeeded, exactly once.
type Orchestrator struct {
	logger         *zap.Logger
	registry       *registry.Registry
	driver         sandbox.Driver
	admission      *admission.Controller
	compileTimeout time.Duration
	outputCap      int
	maxCodeBytes   int
}

// New creates an orchestrator wired to the registry, driver, and
// admission controller.
func New(logger *zap.Logger, cfg *config.Config, reg *registry.Registry, driver sandbox.Driver, ctrl *admission.Controller) *Orchestrator {
	return &Orchestrator{
		logger:         logger,
		registry:       reg,
		driver:         driver,
		admission:      ctrl,
		compileTimeout: cfg.GetCompileTimeout(),
		outputCap:      cfg.OutputCapBytes(),
		maxCodeBytes:   cfg.MaxCodeBytes(),
	}
}

// Execute runs the submitted code and classifies the outcome.
//
// CompileError, RuntimeError, and TimedOut are normal results of
// executing arbitrary user code and return a nil error. The returned
// error is non-nil only for request-level failures (UnknownLanguage,
// AdmissionTimeout, SandboxUnavailable); the Result still carries the
// matching status so callers can serialize it uniformly.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if err := o.validate(req); err != nil {
		return Result{}, err
	}

	profile, err := o.registry.Resolve(req.Language)
	if err != nil {
		// No slot was held and no sandbox was created for this request.
		return Result{Status: StatusUnknownLanguage, Elapsed: time.Since(start)}, err
	}

	slot, err := o.admission.Acquire(ctx)
	if err != nil {
		if errors.Is(err, admission.ErrAdmissionTimeout) {
			return Result{Status: StatusAdmissionTimeout, Elapsed: time.Since(start)}, err
		}
		return Result{}, err
	}
	defer slot.Release()

	res, err := o.runInSandbox(ctx, profile, req.Code)
	res.Elapsed = time.Since(start)

	o.logger.Info("execution finished",
		zap.String("language", req.Language),
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", res.Elapsed))

	return res, err
}

// runInSandbox owns the provisioned-sandbox lifetime: everything
// between Create and the deferred Destroy.
func (o *Orchestrator) runInSandbox(ctx context.Context, profile registry.Profile, code string) (Result, error) {
	handle, err := o.driver.Create(ctx, profile.Image, profile.Limits, profile.Env)
	if err != nil {
		o.logger.Error("sandbox provisioning failed",
			zap.String("language", profile.Language),
			zap.String("image", profile.Image),
			zap.Error(err))
		return Result{Status: StatusSandboxUnavailable}, err
	}

	defer func() {
		// Teardown must run even when the request context is already
		// dead, and its failure never overrides the result; an orphaned
		// sandbox is an operator problem, not a caller error.
		destroyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
		defer cancel()
		if derr := o.driver.Destroy(destroyCtx, handle); derr != nil {
			o.logger.Error("sandbox teardown failed",
				zap.String("sandbox", handle.ID),
				zap.Error(derr))
		}
	}()

	if err := o.driver.InjectFile(ctx, handle, profile.SourceFile, []byte(code)); err != nil {
		o.logger.Error("source injection failed", zap.String("sandbox", handle.ID), zap.Error(err))
		return Result{Status: StatusSandboxUnavailable}, err
	}

	if profile.Compiled() {
		out, runErr := o.driver.Run(ctx, handle, profile.CompileCmd, o.compileTimeout)
		if runErr != nil {
			o.logger.Error("compile step failed to execute", zap.String("sandbox", handle.ID), zap.Error(runErr))
			return Result{Status: StatusSandboxUnavailable}, runErr
		}
		if out.Killed {
			return Result{
				Status: StatusCompileError,
				Stdout: o.truncate(out.Stdout),
				Stderr: o.truncate(out.Stderr) + "\ncompile step timed out",
			}, nil
		}
		if out.ExitCode != 0 {
			exit := out.ExitCode
			return Result{
				Status:   StatusCompileError,
				Stdout:   o.truncate(out.Stdout),
				Stderr:   o.truncate(out.Stderr),
				ExitCode: &exit,
			}, nil
		}
	}

	out, runErr := o.driver.Run(ctx, handle, profile.RunCmd, profile.TimeLimit)
	if runErr != nil {
		o.logger.Error("run step failed to execute", zap.String("sandbox", handle.ID), zap.Error(runErr))
		return Result{Status: StatusSandboxUnavailable}, runErr
	}

	if out.Killed {
		return Result{
			Status: StatusTimedOut,
			Stdout: o.truncate(out.Stdout),
			Stderr: o.truncate(out.Stderr),
		}, nil
	}

	status := StatusSuccess
	if out.ExitCode != 0 {
		status = StatusRuntimeError
	}
	exit := out.ExitCode
	return Result{
		Status:   status,
		Stdout:   o.truncate(out.Stdout),
		Stderr:   o.truncate(out.Stderr),
		ExitCode: &exit,
	}, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.Code == "" {
		return fmt.Errorf("code must not be empty")
	}
	if len(req.Code) > o.maxCodeBytes {
		return fmt.Errorf("code exceeds maximum length: %d bytes > %d bytes", len(req.Code), o.maxCodeBytes)
	}
	if req.Language == "" {
		return fmt.Errorf("language must not be empty")
	}
	return nil
}

func (o *Orchestrator) truncate(s string) string {
	if len(s) <= o.outputCap {
		return s
	}
	// Back up to a rune boundary so the cut never leaves invalid UTF-8.
	cut := o.outputCap
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
