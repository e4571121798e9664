package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/edvin/homedock/internal/compose"
	"github.com/edvin/homedock/internal/model"
	"github.com/edvin/homedock/internal/platform"
	"github.com/edvin/homedock/internal/runner"
)

type Catalog interface {
	FindLatest(ctx context.Context, appID string) (*model.CatalogApp, error)
	CheckDependencies(ctx context.Context, appID string) (model.DependencyCheck, error)
}

type ComposeResolver interface {
	Resolve(ctx context.Context, req model.DeployRequest) (*compose.Resolved, error)
	CustomDir(appID string) string
}

type ComposeSanitizer interface {
	Sanitize(appID, path string) (*compose.Sanitized, error)
}

type CommandRunner interface {
	Run(ctx context.Context, cmd runner.Command) (*runner.Result, error)
}

type ImagePuller interface {
	Stream(ctx context.Context, cmd runner.Command, emit runner.ProgressFunc) error
}

type ContainerLister interface {
	ProjectContainers(ctx context.Context, project string) ([]model.ContainerInfo, error)
}

type Refresher interface {
	TriggerRefresh() error
}

type ActionLogger interface {
	Log(event string, meta map[string]any, level string)
}

type Deps struct {
	Installed  InstalledApps
	Catalog    Catalog
	Resolver   ComposeResolver
	Sanitizer  ComposeSanitizer
	Runner     CommandRunner
	Puller     ImagePuller
	Containers ContainerLister
	Progress   ProgressSink
	Refresher  Refresher
	Actions    ActionLogger
}

type Options struct {
	DockerBinary      string
	Defaults          SystemDefaults
	HostEnv           []string
	CommandTimeout    time.Duration
	RefreshRetryDelay time.Duration
}

// Orchestrator drives deploy attempts. Attempts for different apps run
// independently; a second attempt for an app that is still deploying is
// rejected.
type Orchestrator struct {
	deps     Deps
	opts     Options
	recorder *Recorder
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	bg       sync.WaitGroup
}

func NewOrchestrator(deps Deps, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.DockerBinary == "" {
		opts.DockerBinary = "docker"
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 60 * time.Second
	}
	if opts.RefreshRetryDelay <= 0 {
		opts.RefreshRetryDelay = time.Second
	}
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		recorder: NewRecorder(deps.Installed),
		logger:   logger.With().Str("component", "deploy").Logger(),
		inflight: make(map[string]struct{}),
	}
}

// Deploy runs one attempt to completion. The attempt is detached from ctx
// cancellation so a disconnecting caller does not abort it. Progress is
// reported to the progress sink; the result only says whether it worked.
func (o *Orchestrator) Deploy(ctx context.Context, req model.DeployRequest) (model.DeployResult, error) {
	if !o.acquire(req.AppID) {
		err := fmt.Errorf("%w for %s", ErrDeployInProgress, req.AppID)
		return model.DeployResult{Error: err.Error()}, err
	}
	defer o.release(req.AppID)

	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	attemptID := platform.NewID()
	d := &deployment{
		o:      o,
		req:    req,
		logger: o.logger.With().Str("app_id", req.AppID).Str("attempt_id", attemptID).Logger(),
	}
	o.logAction("deploy_started", map[string]any{"app_id": req.AppID, "attempt_id": attemptID}, "info")

	err := d.run(ctx)
	deployDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = stageErr(d.state, KindProcess, err)
		}
		if d.rep != nil {
			d.rep.failed(se.progressMessage())
		}
		stageFailures.WithLabelValues(string(se.State)).Inc()
		deploysTotal.WithLabelValues("failure").Inc()
		d.logger.Error().Err(err).Str("stage", string(se.State)).Str("kind", string(se.Kind)).Msg("deploy failed")
		o.logAction("deploy_failed", map[string]any{
			"app_id":     req.AppID,
			"attempt_id": attemptID,
			"stage":      string(se.State),
			"kind":       string(se.Kind),
			"error":      se.Error(),
		}, "error")
		return model.DeployResult{Error: se.Error()}, se
	}

	deploysTotal.WithLabelValues("success").Inc()
	d.logger.Info().Dur("duration", time.Since(start)).Msg("deploy completed")
	o.logAction("deploy_completed", map[string]any{
		"app_id":     req.AppID,
		"attempt_id": attemptID,
		"duration":   time.Since(start).String(),
	}, "info")
	o.refreshAsync(d.logger)

	return model.DeployResult{Success: true}, nil
}

// acquire marks appID as deploying. The entry is removed on release so the
// set only holds apps with a deploy in flight.
func (o *Orchestrator) acquire(appID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[appID]; busy {
		return false
	}
	o.inflight[appID] = struct{}{}
	o.bg.Add(1)
	return true
}

func (o *Orchestrator) release(appID string) {
	o.mu.Lock()
	delete(o.inflight, appID)
	o.mu.Unlock()
	o.bg.Done()
}

// Wait blocks until in-flight deploys and their background refresh
// requests have finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

func (o *Orchestrator) refreshAsync(logger zerolog.Logger) {
	if o.deps.Refresher == nil {
		return
	}
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		err := o.deps.Refresher.TriggerRefresh()
		if err == nil {
			return
		}
		logger.Debug().Err(err).Msg("refresh rejected, retrying once")
		time.Sleep(o.opts.RefreshRetryDelay)
		if err := o.deps.Refresher.TriggerRefresh(); err != nil {
			logger.Warn().Err(err).Msg("failed to trigger state refresh")
		}
	}()
}

func (o *Orchestrator) logAction(event string, meta map[string]any, level string) {
	if o.deps.Actions != nil {
		o.deps.Actions.Log(event, meta, level)
	}
}

// deployment is the state of one attempt.
type deployment struct {
	o      *Orchestrator
	req    model.DeployRequest
	logger zerolog.Logger

	state    State
	rep      *reporter
	project  string
	resolved *compose.Resolved
}

func (d *deployment) run(ctx context.Context) error {
	deps, appID := d.o.deps, d.req.AppID

	d.state = StateValidating
	if ValidAppID(appID) {
		d.rep = newReporter(deps.Progress, appID, DeterministicName(appID), appMeta(d.req.Meta, nil, nil, appID))
	}
	if err := validateRequest(d.req); err != nil {
		return stageErr(StateValidating, KindValidation, err)
	}
	d.project = compose.ProjectName(appID)

	existing, err := deps.Installed.Get(ctx, appID)
	if err != nil {
		return stageErr(StateValidating, KindPersistence, fmt.Errorf("load installed app: %w", err))
	}
	var catalogApp *model.CatalogApp
	if deps.Catalog != nil {
		if catalogApp, err = deps.Catalog.FindLatest(ctx, appID); err != nil {
			d.logger.Warn().Err(err).Msg("catalog lookup failed")
			catalogApp = nil
		}
	}
	meta := appMeta(d.req.Meta, catalogApp, existing, appID)
	d.rep.base.Name, d.rep.base.Icon = meta.Name, meta.Icon
	d.rep.emit(ProgressStart, model.ProgressStarting, "Starting deployment")

	d.state = StateCheckingDependencies
	if d.req.ComposeContent == "" && catalogApp != nil {
		check, err := deps.Catalog.CheckDependencies(ctx, appID)
		if err != nil {
			return stageErr(StateCheckingDependencies, KindDependency, fmt.Errorf("check dependencies: %w", err))
		}
		if !check.Satisfied {
			return stageMsg(StateCheckingDependencies, KindDependency, "Missing dependencies: %s", strings.Join(check.Missing, ", "))
		}
	}

	d.state = StateResolvingCompose
	resolved, err := deps.Resolver.Resolve(ctx, d.req)
	if err != nil {
		// Resolve only fails when writing inline content to disk.
		return stageErr(StateResolvingCompose, KindProcess, err)
	}
	if resolved == nil {
		return stageMsg(StateResolvingCompose, KindResolution, "Compose file not found for app %s", appID)
	}
	d.resolved = resolved

	if d.req.ComposeContent != "" {
		d.state = StateTearingDown
		d.rep.running(ProgressStart, "Removing existing containers")
		d.teardown(ctx, existing)
	}

	d.state = StateSanitizingCompose
	sanitized, err := deps.Sanitizer.Sanitize(appID, resolved.ComposePath)
	if err != nil {
		return stageErr(StateSanitizingCompose, KindResolution, fmt.Errorf("invalid compose file: %w", err))
	}
	defer func() {
		if err := sanitized.Cleanup(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to remove sanitized compose file")
		}
	}()
	d.rep.running(ProgressConfigured, "Compose file configured")

	d.state = StateBuildingEnvironment
	env := BuildEnvironment(d.o.opts.HostEnv, d.o.opts.Defaults, appID, d.req.Config)
	var (
		file *compose.File
		md   compose.Metadata
	)
	if file, err = compose.Load(resolved.ComposePath); err != nil {
		d.logger.Warn().Err(err).Msg("cannot inspect compose file")
	} else {
		md = file.Inspect(env)
	}
	containerName := md.ContainerName
	if containerName == "" {
		containerName = DeterministicName(appID)
	}
	env = env.WithContainerName(containerName)
	d.rep.setContainer(containerName)

	d.state = StateSeedingData
	var binds []string
	if file != nil {
		binds = file.BindSources(env)
	}
	seeded, err := SeedData(d.logger, resolved.AppDir, env["APP_DATA_DIR"], binds)
	if err != nil {
		return stageErr(StateSeedingData, KindProcess, err)
	}
	d.logger.Debug().Int("files", seeded).Msg("app data seeded")
	d.rep.running(ProgressSeeded, "App data prepared")

	d.state = StatePulling
	d.rep.running(ProgressPullStart, "Pulling images")
	if err := deps.Puller.Stream(ctx, d.composeCmd(env, sanitized.Path, "pull"), d.rep.running); err != nil {
		return stageErr(StatePulling, KindProcess, err)
	}

	d.state = StateStartingServices
	d.rep.running(ProgressPullDone, "Starting services")
	res, err := deps.Runner.Run(ctx, d.composeCmd(env, sanitized.Path, "up", "-d"))
	if err != nil {
		return stageErr(StateStartingServices, KindProcess, err)
	}
	d.logStderr(res.Stderr)

	d.state = StateFinalizing
	d.rep.running(ProgressFinalizing, "Finalizing installation")
	primary, containers := d.detectContainers(ctx, md)
	d.rep.setContainer(primary)

	d.state = StateRecording
	_, err = d.o.recorder.Record(ctx, Outcome{
		AppID:         appID,
		ContainerName: primary,
		Containers:    containers,
		WebUIPort:     md.WebUIPort,
		NetworkMode:   md.NetworkMode,
		ComposePath:   resolved.ComposePath,
		DeployMethod:  resolved.Method,
		Meta:          meta,
		Source:        d.req.Source,
		ContainerMeta: d.req.ContainerMeta,
		Overrides:     d.req.Config,
		Existing:      existing,
		Catalog:       catalogApp,
	})
	if err != nil {
		return stageErr(StateRecording, KindPersistence, err)
	}

	d.state = StateDone
	d.rep.completed("Installation complete")
	return nil
}

func (d *deployment) composeCmd(env Environment, file string, args ...string) runner.Command {
	full := []string{"compose", "--project-name", d.project, "--project-directory", d.resolved.AppDir, "-f", file}
	return runner.Command{
		Name:  d.o.opts.DockerBinary,
		Args:  append(full, args...),
		Dir:   d.resolved.AppDir,
		Env:   env.Environ(),
		Label: "docker compose " + args[0],
	}
}

// teardown stops the containers of a previous deployment. Failures are
// logged; a missing container is the normal case for a first deploy.
func (d *deployment) teardown(ctx context.Context, existing *model.InstalledApp) {
	appID := d.req.AppID
	oldCompose := filepath.Join(d.o.deps.Resolver.CustomDir(appID), compose.ComposeFileName)
	if existing != nil && existing.Config.ComposePath != "" {
		oldCompose = existing.Config.ComposePath
	}
	oldDir := filepath.Dir(oldCompose)

	args := []string{"compose", "--project-name", d.project}
	if info, err := os.Stat(oldCompose); err == nil && info.Mode().IsRegular() {
		args = append(args, "--project-directory", oldDir, "-f", oldCompose)
	}
	args = append(args, "down", "--remove-orphans")

	env := BuildEnvironment(d.o.opts.HostEnv, d.o.opts.Defaults, appID, d.req.Config).
		WithContainerName(DeterministicName(appID))
	cmd := runner.Command{
		Name:    d.o.opts.DockerBinary,
		Args:    args,
		Env:     env.Environ(),
		Timeout: d.o.opts.CommandTimeout,
		Label:   "docker compose down",
	}
	if info, err := os.Stat(oldDir); err == nil && info.IsDir() {
		cmd.Dir = oldDir
	}

	_, err := d.o.deps.Runner.Run(ctx, cmd)
	if err == nil {
		d.logger.Info().Str("dir", oldDir).Msg("previous deployment stopped")
		return
	}
	d.logger.Warn().Err(err).Str("dir", oldDir).Msg("compose down failed, removing container directly")

	name := DeterministicName(appID)
	_, err = d.o.deps.Runner.Run(ctx, runner.Command{
		Name:    d.o.opts.DockerBinary,
		Args:    []string{"rm", "-f", name},
		Timeout: d.o.opts.CommandTimeout,
		Label:   "docker rm",
	})
	if err == nil {
		return
	}
	var perr *runner.ProcessError
	if errors.As(err, &perr) && strings.Contains(strings.ToLower(perr.Stderr), "no such container") {
		d.logger.Debug().Str("container", name).Msg("no existing container to remove")
		return
	}
	d.logger.Warn().Err(err).Str("container", name).Msg("failed to remove existing container")
}

func (d *deployment) logStderr(stderr string) {
	noise, other := runner.SplitStderr(stderr)
	if len(noise) > 0 {
		d.logger.Debug().Int("lines", len(noise)).Msg("compose up progress output")
	}
	if len(other) > 0 {
		d.logger.Warn().Strs("stderr", other).Msg("compose up wrote to stderr")
	}
}

// detectContainers names the primary container and all containers of the
// project: the daemon first, then the compose file, then the deterministic name.
func (d *deployment) detectContainers(ctx context.Context, md compose.Metadata) (string, []string) {
	guess := md.ContainerName
	if guess == "" && md.Service != "" {
		guess = d.project + "-" + md.Service + "-1"
	}
	if guess == "" {
		guess = DeterministicName(d.req.AppID)
	}

	if d.o.deps.Containers == nil {
		return guess, []string{guess}
	}
	list, err := d.o.deps.Containers.ProjectContainers(ctx, d.project)
	if err != nil {
		d.logger.Warn().Err(err).Msg("container detection failed, using compose file")
		return guess, []string{guess}
	}
	if len(list) == 0 {
		return guess, []string{guess}
	}

	names := make([]string, 0, len(list))
	primary := ""
	for _, c := range list {
		names = append(names, c.Name)
		if primary == "" && md.Service != "" && c.Service == md.Service {
			primary = c.Name
		}
	}
	if primary == "" {
		for _, c := range list {
			if c.State == "running" {
				primary = c.Name
				break
			}
		}
	}
	if primary == "" {
		primary = list[0].Name
	}
	return primary, names
}

// appMeta resolves display metadata: caller override, catalog entry,
// existing record, then a name derived from the app ID.
func appMeta(override *model.AppMeta, catalog *model.CatalogApp, existing *model.InstalledApp, appID string) model.AppMeta {
	var meta model.AppMeta
	if override != nil {
		meta = *override
	}
	if meta.Name == "" {
		switch {
		case catalog != nil && catalog.Name != "":
			meta.Name = catalog.Name
		case existing != nil && existing.Name != "":
			meta.Name = existing.Name
		default:
			meta.Name = prettify(appID)
		}
	}
	if meta.Icon == "" {
		switch {
		case catalog != nil && catalog.Icon != "":
			meta.Icon = catalog.Icon
		case existing != nil:
			meta.Icon = existing.Icon
		}
	}
	return meta
}

func prettify(appID string) string {
	words := strings.FieldsFunc(appID, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
