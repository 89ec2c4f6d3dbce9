// Package app wires the tool's components together and dispatches the
// command line.
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/clock"
	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshhttp "github.com/cloudfoundry/bosh-utils/httpclient"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	"github.com/copterspace/img-tool/chroot"
	"github.com/copterspace/img-tool/disk"
	imgerr "github.com/copterspace/img-tool/errors"
	"github.com/copterspace/img-tool/fetch"
	"github.com/copterspace/img-tool/resize"
	"github.com/copterspace/img-tool/session"
)

type App interface {
	Setup(args []string) error
	Run() (int, error)
}

type app struct {
	logger    boshlog.Logger
	fs        boshsys.FileSystem
	cmdRunner boshsys.CmdRunner
	out       io.Writer
	logTag    string

	options  Options
	sessions session.Opener
	executor chroot.Executor
	engine   resize.Engine
	loader   fetch.Loader
}

func New(logger boshlog.Logger, fs boshsys.FileSystem, cmdRunner boshsys.CmdRunner) App {
	return &app{
		logger:    logger,
		fs:        fs,
		cmdRunner: cmdRunner,
		out:       os.Stdout,
		logTag:    "App",
	}
}

func (app *app) Setup(args []string) error {
	options, err := ParseOptions(args)
	if err != nil {
		return err
	}
	app.options = options

	if os.Geteuid() != 0 {
		return imgerr.NewValidationError("img-tool manipulates loop devices and mounts, run it as root")
	}

	config, err := LoadConfigFromPath(app.fs, os.Getenv("IMG_TOOL_CONFIG"))
	if err != nil {
		return bosherr.WrapError(err, "Loading config")
	}

	if config.MountParentDir != "" {
		if err := app.fs.ChangeTempRoot(config.MountParentDir); err != nil {
			return bosherr.WrapError(err, "Setting mount parent directory")
		}
	}

	timeService := clock.NewClock()
	binder := disk.NewLosetupBinder(app.logger, app.cmdRunner, app.fs, timeService)
	partitioner := disk.NewSfdiskPartitioner(app.logger, app.cmdRunner)
	mounter := disk.NewLinuxMounter(app.logger, app.cmdRunner, disk.NewProcMountsSearcher(), 1*time.Second)

	app.sessions = session.NewManager(app.logger, binder, partitioner, mounter, app.fs)
	app.executor = chroot.NewExecutor(app.logger, app.cmdRunner, app.fs, mounter, chroot.Options{
		QemuPath:  config.QemuPath,
		ShellPath: config.ShellPath,
	})

	fixer := resize.NewPartUUIDFixer(app.logger, partitioner, app.fs)
	app.engine = resize.NewEngine(
		app.logger,
		binder,
		partitioner,
		disk.NewExt4FileSystem(app.logger, app.cmdRunner),
		disk.NewLocalImageSizer(app.cmdRunner),
		app.sessions,
		fixer,
	)

	httpClient := boshhttp.NewRetryClient(boshhttp.CreateDefaultClient(nil), 3, 1*time.Second, app.logger)
	app.loader = fetch.NewLoader(app.logger, httpClient, app.fs)

	return nil
}

func (app *app) Run() (int, error) {
	switch app.options.Command {
	case "exec":
		return app.runExec()
	case "copy":
		return app.runCopy()
	case "size":
		return app.runSize()
	case "load":
		return app.runLoad()
	default:
		return 1, imgerr.NewValidationErrorf("unknown command '%s'", app.options.Command)
	}
}

func (app *app) runExec() (int, error) {
	scriptPath := ""
	scriptArgs := app.options.Args
	if len(scriptArgs) > 0 {
		scriptPath = scriptArgs[0]
		scriptArgs = scriptArgs[1:]

		if !app.fs.FileExists(scriptPath) {
			return 1, imgerr.NewValidationErrorf("script '%s' does not exist", scriptPath)
		}
	}

	work := func(mountPoint string, args []string) (int, error) {
		return app.executor.Run(mountPoint, scriptPath, args)
	}

	return app.sessions.Open(app.options.ImagePath, work, scriptArgs)
}

func (app *app) runCopy() (int, error) {
	src, dst := app.options.Args[0], app.options.Args[1]

	if !app.fs.FileExists(src) {
		return 1, imgerr.NewValidationErrorf("source '%s' does not exist", src)
	}

	work := func(mountPoint string, _ []string) (int, error) {
		target := filepath.Join(mountPoint, dst)
		_, _, _, err := app.cmdRunner.RunCommand("cp", "-a", src, target)
		if err != nil {
			return 1, bosherr.WrapErrorf(err, "Copying '%s' to '%s'", src, dst)
		}
		return 0, nil
	}

	return app.sessions.Open(app.options.ImagePath, work, nil)
}

func (app *app) runSize() (int, error) {
	if len(app.options.Args) == 0 {
		report, err := app.engine.Resize(app.options.ImagePath, nil)
		if err != nil {
			return 1, err
		}

		fmt.Fprintf(app.out, "current size:  %d bytes\n", report.CurrentBytes)   //nolint:errcheck
		fmt.Fprintf(app.out, "allocated:     %d bytes\n", report.AllocatedBytes) //nolint:errcheck
		fmt.Fprintf(app.out, "minimum size:  %d bytes\n", report.MinimumBytes)   //nolint:errcheck
		return 0, nil
	}

	newSize, err := ParseSize(app.options.Args[0])
	if err != nil {
		return 1, err
	}

	report, err := app.engine.Resize(app.options.ImagePath, &newSize)
	if err != nil {
		return 1, err
	}

	fmt.Fprintf(app.out, "applied size:  %d bytes\n", report.AppliedBytes) //nolint:errcheck
	return 0, nil
}

func (app *app) runLoad() (int, error) {
	if err := app.loader.Load(app.options.Args[0], app.options.ImagePath); err != nil {
		return 1, err
	}
	return 0, nil
}
