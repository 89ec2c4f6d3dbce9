// Package session mounts an image's partitions at a scratch mount point, runs
// caller work against it and guarantees teardown on every exit path.
package session

import (
	"path/filepath"
	"strconv"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	"github.com/copterspace/img-tool/disk"
	imgerr "github.com/copterspace/img-tool/errors"
)

// Work runs against a mounted image root and reports its exit code. A
// non-zero code never skips teardown.
type Work func(mountPoint string, args []string) (int, error)

type Opener interface {
	Open(imagePath string, work Work, args []string) (int, error)
}

type manager struct {
	logger      boshlog.Logger
	binder      disk.Binder
	partitioner disk.Partitioner
	mounter     disk.Mounter
	fs          boshsys.FileSystem
	logTag      string
}

func NewManager(
	logger boshlog.Logger,
	binder disk.Binder,
	partitioner disk.Partitioner,
	mounter disk.Mounter,
	fs boshsys.FileSystem,
) Opener {
	return manager{
		logger:      logger,
		binder:      binder,
		partitioner: partitioner,
		mounter:     mounter,
		fs:          fs,
		logTag:      "MountSession",
	}
}

func (m manager) Open(imagePath string, work Work, args []string) (int, error) {
	binding, err := m.binder.Bind(imagePath)
	if err != nil {
		return 1, err
	}
	defer m.release(&binding)

	table, err := m.partitioner.Inspect(binding.DevicePath)
	if err != nil {
		return 1, err
	}

	boot, root, err := bootRootLayout(table)
	if err != nil {
		return 1, err
	}

	mountPoint, err := m.fs.TempDir("img-tool-mnt")
	if err != nil {
		return 1, bosherr.WrapError(err, "Creating mount point")
	}

	if err := m.mountPartition(root, binding, "ext4", mountPoint); err != nil {
		m.removeMountPoint(mountPoint)
		return 1, err
	}

	bootMountPoint := filepath.Join(mountPoint, "boot")
	if err := m.fs.MkdirAll(bootMountPoint, 0755); err != nil {
		m.teardown(mountPoint)
		return 1, bosherr.WrapError(err, "Creating boot mount point")
	}
	if err := m.mountPartition(boot, binding, "vfat", bootMountPoint); err != nil {
		m.teardown(mountPoint)
		return 1, err
	}

	exitCode, workErr := work(mountPoint, args)

	m.teardown(mountPoint)

	return exitCode, workErr
}

func bootRootLayout(table disk.PartitionTable) (boot, root disk.Partition, err error) {
	if len(table.Partitions) != 2 {
		return boot, root, imgerr.NewValidationErrorf(
			"unsupported image layout: expected a boot+root pair, found %d partition(s)", len(table.Partitions))
	}

	boot, root = table.Partitions[0], table.Partitions[1]
	if boot.Type != disk.PartitionTypeFAT || root.Type != disk.PartitionTypeLinux {
		return boot, root, imgerr.NewValidationErrorf(
			"unsupported image layout: expected FAT boot and Linux root, found %s and %s", boot.Type, root.Type)
	}

	return boot, root, nil
}

func (m manager) mountPartition(partition disk.Partition, binding disk.LoopBinding, fstype, mountPoint string) error {
	return m.mounter.MountFilesystem(
		binding.DevicePath,
		mountPoint,
		fstype,
		"loop",
		"offset="+strconv.FormatUint(partition.StartInBytes(), 10),
		"sizelimit="+strconv.FormatUint(partition.SizeInBytes(), 10),
	)
}

// teardown unmounts boot then root and removes the mount point. Unmount
// failures are reported but never abort the remaining steps.
func (m manager) teardown(mountPoint string) {
	if _, err := m.mounter.Unmount(filepath.Join(mountPoint, "boot")); err != nil {
		m.logger.Error(m.logTag, "Releasing boot mount: %s", err.Error())
	}
	if _, err := m.mounter.Unmount(mountPoint); err != nil {
		m.logger.Error(m.logTag, "Releasing root mount: %s", err.Error())
	}
	m.removeMountPoint(mountPoint)
}

func (m manager) removeMountPoint(mountPoint string) {
	if err := m.fs.RemoveAll(mountPoint); err != nil {
		m.logger.Error(m.logTag, "Removing mount point '%s': %s", mountPoint, err.Error())
	}
}

func (m manager) release(binding *disk.LoopBinding) {
	if err := m.binder.Unbind(binding); err != nil {
		m.logger.Error(m.logTag, "Releasing loop binding: %s", err.Error())
	}
}
