// Package chroot prepares a mounted image root for native or cross-arch
// execution and runs a script or interactive shell inside it.
package chroot

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	"github.com/copterspace/img-tool/disk"
	imgerr "github.com/copterspace/img-tool/errors"
)

type Executor interface {
	// Run executes scriptPath (or an interactive shell when scriptPath is
	// empty) inside the root mounted at mountPoint. The script's exit code is
	// returned; a non-zero code never skips restoration of the target.
	Run(mountPoint, scriptPath string, args []string) (int, error)
}

type Options struct {
	HostArch  string // defaults to runtime.GOARCH
	QemuPath  string // defaults to /usr/bin/qemu-arm-static
	ShellPath string // defaults to /bin/bash

	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

type executor struct {
	logger    boshlog.Logger
	cmdRunner boshsys.CmdRunner
	fs        boshsys.FileSystem
	mounter   disk.Mounter
	opts      Options
	logTag    string
}

func NewExecutor(
	logger boshlog.Logger,
	cmdRunner boshsys.CmdRunner,
	fs boshsys.FileSystem,
	mounter disk.Mounter,
	opts Options,
) Executor {
	if opts.HostArch == "" {
		opts.HostArch = runtime.GOARCH
	}
	if opts.QemuPath == "" {
		opts.QemuPath = "/usr/bin/qemu-arm-static"
	}
	if opts.ShellPath == "" {
		opts.ShellPath = "/bin/bash"
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	return executor{
		logger:    logger,
		cmdRunner: cmdRunner,
		fs:        fs,
		mounter:   mounter,
		opts:      opts,
		logTag:    "ChrootExecutor",
	}
}

func (e executor) Run(mountPoint, scriptPath string, args []string) (int, error) {
	if err := e.setupEmulation(mountPoint); err != nil {
		return 1, err
	}

	if err := e.mountPseudoFilesystems(mountPoint); err != nil {
		e.unmountPseudoFilesystems(mountPoint)
		return 1, err
	}
	defer e.unmountPseudoFilesystems(mountPoint)

	if err := e.fs.CopyFile("/etc/resolv.conf", filepath.Join(mountPoint, "etc/resolv.conf")); err != nil {
		e.logger.Error(e.logTag, "Copying resolver configuration: %s", err.Error())
	}

	restorePreload, err := e.disablePreload(mountPoint)
	if err != nil {
		return 1, err
	}
	defer restorePreload()

	chrootArgs := []string{mountPoint, e.opts.ShellPath}

	if scriptPath != "" {
		scriptName := filepath.Base(scriptPath)
		target := filepath.Join(mountPoint, "tmp", scriptName)
		if err := e.fs.CopyFile(scriptPath, target); err != nil {
			return 1, bosherr.WrapErrorf(err, "Copying script '%s' into target", scriptPath)
		}
		if err := e.fs.Chmod(target, 0755); err != nil {
			return 1, bosherr.WrapError(err, "Marking script executable")
		}
		defer e.fs.RemoveAll(target) //nolint:errcheck

		chrootArgs = append(chrootArgs, "/tmp/"+scriptName)
		chrootArgs = append(chrootArgs, args...)
	} else {
		e.logger.Info(e.logTag, "Starting interactive shell in '%s'", mountPoint)
	}

	_, _, exitStatus, err := e.cmdRunner.RunComplexCommand(boshsys.Command{
		Name:   "chroot",
		Args:   chrootArgs,
		Stdin:  e.opts.Stdin,
		Stdout: e.opts.Stdout,
		Stderr: e.opts.Stderr,
	})
	if err != nil {
		if exitStatus > 0 {
			return exitStatus, imgerr.NewWorkError(exitStatus, "chrooted shell exited with a non-zero status")
		}
		return 1, bosherr.WrapError(err, "Running chroot shell")
	}

	return 0, nil
}

// setupEmulation registers the user-mode qemu interpreter and copies the
// static emulation binary into the target when the host cannot execute the
// target's binaries natively.
func (e executor) setupEmulation(mountPoint string) error {
	if e.opts.HostArch == "arm" || e.opts.HostArch == "arm64" {
		e.logger.Info(e.logTag, "Host is native, skipping emulation setup")
		return nil
	}

	if !e.fs.FileExists("/proc/sys/fs/binfmt_misc/qemu-arm") {
		_, _, _, err := e.cmdRunner.RunCommand("update-binfmts", "--enable", "qemu-arm")
		if err != nil {
			return bosherr.WrapError(err, "Registering qemu-arm binfmt interpreter")
		}
	}

	target := filepath.Join(mountPoint, "usr/bin", filepath.Base(e.opts.QemuPath))
	if err := e.fs.CopyFile(e.opts.QemuPath, target); err != nil {
		return bosherr.WrapErrorf(err, "Copying '%s' into target", e.opts.QemuPath)
	}
	if err := e.fs.Chmod(target, 0755); err != nil {
		return bosherr.WrapError(err, "Marking emulator executable")
	}

	return nil
}

func (e executor) mountPseudoFilesystems(mountPoint string) error {
	mounts := []struct {
		source  string
		target  string
		fstype  string
		options []string
	}{
		{"proc", "proc", "proc", []string{"nosuid", "noexec", "nodev"}},
		{"sysfs", "sys", "sysfs", []string{"ro", "nosuid", "noexec", "nodev"}},
		{"/dev", "dev", "", []string{"bind"}},
		{"devpts", "dev/pts", "devpts", []string{"nosuid", "noexec"}},
	}

	for _, mnt := range mounts {
		target := filepath.Join(mountPoint, mnt.target)
		if err := e.mounter.MountFilesystem(mnt.source, target, mnt.fstype, mnt.options...); err != nil {
			return err
		}
	}

	return nil
}

func (e executor) unmountPseudoFilesystems(mountPoint string) {
	for _, target := range []string{"dev/pts", "dev", "sys", "proc"} {
		if _, err := e.mounter.Unmount(filepath.Join(mountPoint, target)); err != nil {
			e.logger.Error(e.logTag, "Releasing pseudo filesystem '%s': %s", target, err.Error())
		}
	}
}

// disablePreload moves the target's dynamic-linker preload configuration
// aside so foreign-architecture execution is not broken by target-built
// preload libraries, and returns the restore step.
func (e executor) disablePreload(mountPoint string) (func(), error) {
	preloadPath := filepath.Join(mountPoint, "etc/ld.so.preload")
	if !e.fs.FileExists(preloadPath) {
		return func() {}, nil
	}

	disabledPath := preloadPath + ".disabled"
	if err := e.fs.Rename(preloadPath, disabledPath); err != nil {
		return nil, bosherr.WrapError(err, "Disabling ld.so.preload")
	}

	return func() {
		if err := e.fs.Rename(disabledPath, preloadPath); err != nil {
			e.logger.Error(e.logTag, "Restoring ld.so.preload: %s", err.Error())
		}
	}, nil
}
