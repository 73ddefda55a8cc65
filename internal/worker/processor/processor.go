package processor

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"comfybridge/internal/audio"
	"comfybridge/internal/comfy"
	"comfybridge/internal/metrics"
	"comfybridge/internal/pkg/errors"
	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/ports"
	"comfybridge/internal/workflow"
)

// Options are the per-process knobs of the job pipeline.
type Options struct {
	WorkRoot          string
	DefaultWorkflow   string
	ReadyMaxAttempts  int
	ReadyInterval     time.Duration
	ProbeTimeout      time.Duration
	CompletionTimeout time.Duration
	KeepWorkDir       bool
}

type Deps struct {
	Engine    comfy.Engine
	Workflows workflow.Source
	SP        ports.StorageProvider
	Duration  audio.DurationFunc
	// HTTPClient downloads remote inputs.
	HTTPClient *http.Client
	Log        *logger.Logger
	Options    Options
}

// Processor runs jobs. It holds no per-job state, so one value may serve
// concurrent jobs.
type Processor struct {
	engine    comfy.Engine
	workflows workflow.Source
	opts      Options
	log       *logger.Logger

	gate          *Gate
	inputHandler  *InputHandler
	prober        *DurationProber
	outputHandler *OutputHandler
	cleanup       *Cleanup

	newID func() string
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	opts := d.Options
	if opts.WorkRoot == "" {
		opts.WorkRoot = os.TempDir()
	}
	if opts.DefaultWorkflow == "" {
		opts.DefaultWorkflow = "singlespeaker"
	}

	return &Processor{
		engine:        d.Engine,
		workflows:     d.Workflows,
		opts:          opts,
		log:           log,
		gate:          NewGate(d.Engine.Probe, opts.ReadyMaxAttempts, opts.ReadyInterval, opts.ProbeTimeout, log),
		inputHandler:  NewInputHandler(d.HTTPClient),
		prober:        NewDurationProber(d.Duration, log),
		outputHandler: NewOutputHandler(d.SP),
		cleanup:       NewCleanup(opts.KeepWorkDir),
		newID:         uuid.NewString,
	}
}

// DefaultWorkflow is the template used when a payload names none.
func (p *Processor) DefaultWorkflow() string {
	return p.opts.DefaultWorkflow
}

// Handle parses a raw payload and runs it.
func (p *Processor) Handle(ctx context.Context, raw []byte) (*Result, error) {
	in, err := ParseInput(raw, p.opts.DefaultWorkflow)
	if err != nil {
		p.log.FromContext(ctx).Warn("rejected job input", "error", err.Error())
		return nil, err
	}
	return p.ProcessJob(ctx, in)
}

// ProcessJob runs one job from readiness check to result. Every failure
// aborts the job and is returned as a single *errors.Error.
func (p *Processor) ProcessJob(ctx context.Context, in *Input) (res *Result, err error) {
	jobID := p.newID()
	ctx = logger.ContextWithJobID(ctx, jobID)
	log := p.log.FromContext(ctx)

	done := metrics.JobStarted()
	start := time.Now()
	defer func() {
		code := "OK"
		if err != nil {
			code = string(errors.GetCode(err))
		}
		done(code)
	}()

	if in == nil {
		return nil, p.failJob(ctx, errors.ValidationField("input", "input is required"))
	}
	if in.Workflow == "" {
		in.Workflow = p.opts.DefaultWorkflow
	}
	if err := in.Validate(); err != nil {
		return nil, p.failJob(ctx, err)
	}

	log.Info("job started", "workflow", in.Workflow, "network_volume", in.NetworkVolume)

	// 1. Engine readiness
	if err := p.timed("gate", func() error { return p.gate.AwaitReady(ctx) }); err != nil {
		return nil, p.failJob(ctx, err)
	}

	// 2. Workflow template
	log.Debug("loading workflow", "workflow", in.Workflow)
	graph, err := p.workflows.Load(ctx, in.Workflow)
	if err != nil {
		return nil, p.failJob(ctx, errors.Wrap(err, "processor.workflow", "failed to load workflow "+in.Workflow))
	}
	if err := workflow.Validate(graph); err != nil {
		return nil, p.failJob(ctx, errors.Wrap(err, "processor.workflow", "workflow "+in.Workflow+" is not usable"))
	}

	// 3. Working directory
	workDir := filepath.Join(p.opts.WorkRoot, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, p.failJob(ctx, errors.E(errors.CodeInternal, "processor.workdir", err, "create working directory"))
	}
	defer func() {
		if cerr := p.cleanup.CleanupJob(workDir); cerr != nil {
			log.Warn("failed to remove working directory", "path", workDir, "error", cerr.Error())
		}
	}()

	audioPath := filepath.Join(workDir, AudioFileName)
	imagePath := filepath.Join(workDir, ImageFileName)

	// 4. Inputs
	err = p.timed("materialize", func() error {
		if err := p.inputHandler.Materialize(ctx, in.Audio, audioPath); err != nil {
			return errors.Wrap(err, "processor.inputs", "failed to materialize audio")
		}
		if err := p.inputHandler.Materialize(ctx, in.Image, imagePath); err != nil {
			return errors.Wrap(err, "processor.inputs", "failed to materialize image")
		}
		return nil
	})
	if err != nil {
		return nil, p.failJob(ctx, err)
	}
	log.Debug("inputs materialized", "audio", audioPath, "image", imagePath)

	// 5. Duration
	seconds, ok := p.prober.Probe(ctx, audioPath)
	if !ok {
		return nil, p.failJob(ctx, errors.New(errors.CodeDurationUnavailable, "could not determine audio duration").
			WithField("path", audioPath))
	}
	log.Debug("audio duration", "seconds", seconds)

	// 6. Parameterize
	bound, err := workflow.Parameterize(graph, workflow.Bindings{
		ImagePath: imagePath,
		AudioPath: audioPath,
		Duration:  seconds,
	})
	if err != nil {
		return nil, p.failJob(ctx, errors.Wrap(err, "processor.parameterize", "failed to bind inputs"))
	}
	log.Debug("workflow parameterized", "nodes", bound)

	// 7. Submit
	var promptID string
	err = p.timed("submit", func() error {
		var serr error
		promptID, serr = p.engine.Submit(ctx, graph, jobID)
		return serr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.failJob(ctx, contextError(ctx, "processor.submit", "submitting workflow"))
		}
		return nil, p.failJob(ctx, errors.WrapWithCode(err, errors.CodeSubmissionRejected, "processor.submit", "engine rejected workflow"))
	}
	log.Info("workflow submitted", "prompt_id", promptID)

	// 8. Wait
	waitCtx := ctx
	if p.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.opts.CompletionTimeout)
		defer cancel()
	}
	var events int
	err = p.timed("wait", func() error {
		var werr error
		events, werr = WaitForCompletion(waitCtx, p.engine, promptID, jobID)
		return werr
	})
	if err != nil {
		return nil, p.failJob(ctx, err)
	}
	log.Debug("execution finished", "prompt_id", promptID, "events", events)

	// 9. Output
	err = p.timed("resolve", func() error {
		var rerr error
		res, rerr = p.outputHandler.Resolve(ctx, jobID, workDir, in.NetworkVolume)
		return rerr
	})
	if err != nil {
		return nil, p.failJob(ctx, err)
	}

	log.Info("job completed",
		"prompt_id", promptID,
		"video_path", res.VideoPath,
		"inline", res.VideoBase64 != "",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStage(stage, time.Since(start))
	return err
}

func (p *Processor) failJob(ctx context.Context, cause error) error {
	log := p.log.FromContext(ctx)

	var e *errors.Error
	if errors.As(cause, &e) {
		log.Error("job failed",
			"code", string(e.Code),
			"op", e.Op,
			"message", e.Message,
			"error", cause.Error(),
		)
		return cause
	}

	log.Error("job failed", "error", cause.Error())
	return errors.Wrap(cause, "processor", "job failed")
}
