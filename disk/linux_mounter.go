package disk

import (
	"strings"
	"time"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshretry "github.com/cloudfoundry/bosh-utils/retrystrategy"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	imgerr "github.com/copterspace/img-tool/errors"
)

const maxUnmountAttempts = 3

type linuxMounter struct {
	logger            boshlog.Logger
	cmdRunner         boshsys.CmdRunner
	mountsSearcher    MountsSearcher
	unmountRetryDelay time.Duration
	logTag            string
}

func NewLinuxMounter(
	logger boshlog.Logger,
	cmdRunner boshsys.CmdRunner,
	mountsSearcher MountsSearcher,
	unmountRetryDelay time.Duration,
) Mounter {
	return linuxMounter{
		logger:            logger,
		cmdRunner:         cmdRunner,
		mountsSearcher:    mountsSearcher,
		unmountRetryDelay: unmountRetryDelay,
		logTag:            "LinuxMounter",
	}
}

func (m linuxMounter) Mount(devicePath, mountPoint string, mountOptions ...string) error {
	return m.MountFilesystem(devicePath, mountPoint, "", mountOptions...)
}

func (m linuxMounter) MountFilesystem(devicePath, mountPoint, fstype string, mountOptions ...string) error {
	args := []string{}
	if fstype != "" {
		args = append(args, "-t", fstype)
	}
	if len(mountOptions) > 0 {
		args = append(args, "-o", strings.Join(mountOptions, ","))
	}
	args = append(args, devicePath, mountPoint)

	_, _, _, err := m.cmdRunner.RunCommand("mount", args...)
	if err != nil {
		return imgerr.WrapMountError(err, "Mounting '"+devicePath+"' at '"+mountPoint+"'")
	}

	m.logger.Debug(m.logTag, "Mounted '%s' at '%s'", devicePath, mountPoint)
	return nil
}

// Unmount lazily and forcibly unmounts mountPoint, retrying a stuck unmount
// before reporting it as a cleanup failure. An unmounted path is a no-op.
func (m linuxMounter) Unmount(mountPoint string) (bool, error) {
	mounted, err := m.IsMounted(mountPoint)
	if err != nil {
		return false, bosherr.WrapErrorf(err, "Checking mount state of '%s'", mountPoint)
	}
	if !mounted {
		return false, nil
	}

	unmountRetryable := boshretry.NewRetryable(func() (bool, error) {
		_, _, _, err := m.cmdRunner.RunCommand("umount", "-l", "-f", mountPoint)
		if err != nil {
			return true, bosherr.WrapErrorf(err, "Unmounting '%s'", mountPoint)
		}
		return false, nil
	})

	unmountRetryStrategy := boshretry.NewAttemptRetryStrategy(
		maxUnmountAttempts,
		m.unmountRetryDelay,
		unmountRetryable,
		m.logger,
	)

	if err := unmountRetryStrategy.Try(); err != nil {
		return false, imgerr.WrapCleanupError(err, "Unmounting '"+mountPoint+"' after retries")
	}

	m.logger.Debug(m.logTag, "Unmounted '%s'", mountPoint)
	return true, nil
}

func (m linuxMounter) IsMounted(path string) (bool, error) {
	return m.mountsSearcher.IsMounted(path)
}
