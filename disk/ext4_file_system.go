package disk

import (
	"regexp"
	"strconv"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"
)

// Ext4FileSystem drives the ext4 check/estimate/resize tooling against a
// partition device. Sizes are expressed in bytes at this interface; the
// tooling itself works in 4096-byte filesystem blocks.
type Ext4FileSystem interface {
	Check(partitionPath string) error
	MinimumSizeInBytes(partitionPath string) (uint64, error)
	Resize(partitionPath string, sizeBytes uint64) error
}

type ext4FileSystem struct {
	logger    boshlog.Logger
	cmdRunner boshsys.CmdRunner
	logTag    string
}

func NewExt4FileSystem(logger boshlog.Logger, cmdRunner boshsys.CmdRunner) Ext4FileSystem {
	return ext4FileSystem{
		logger:    logger,
		cmdRunner: cmdRunner,
		logTag:    "Ext4FileSystem",
	}
}

// Check runs a repairing filesystem check. e2fsck exits 1 or 2 when it fixed
// something, which still counts as a usable filesystem.
func (e ext4FileSystem) Check(partitionPath string) error {
	_, _, exitStatus, err := e.cmdRunner.RunCommand("e2fsck", "-f", "-y", partitionPath)
	if err != nil && exitStatus > 2 {
		return bosherr.WrapErrorf(err, "Checking filesystem on '%s'", partitionPath)
	}
	if err != nil && exitStatus < 0 {
		return bosherr.WrapErrorf(err, "Running e2fsck on '%s'", partitionPath)
	}

	e.logger.Debug(e.logTag, "Checked filesystem on '%s' (e2fsck exit %d)", partitionPath, exitStatus)
	return nil
}

var minimumSizePattern = regexp.MustCompile(`Estimated minimum size of the filesystem: (\d+)`)

func (e ext4FileSystem) MinimumSizeInBytes(partitionPath string) (uint64, error) {
	stdout, stderr, _, err := e.cmdRunner.RunCommand("resize2fs", "-P", partitionPath)
	if err != nil {
		return 0, bosherr.WrapErrorf(err, "Estimating minimum filesystem size of '%s'", partitionPath)
	}

	match := minimumSizePattern.FindStringSubmatch(stdout + "\n" + stderr)
	if match == nil {
		return 0, bosherr.Errorf("Parsing minimum filesystem size of '%s'", partitionPath)
	}

	blocks, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return 0, bosherr.WrapErrorf(err, "Converting minimum filesystem size of '%s'", partitionPath)
	}

	return blocks * FSBlockSize, nil
}

func (e ext4FileSystem) Resize(partitionPath string, sizeBytes uint64) error {
	if sizeBytes%FSBlockSize != 0 {
		return bosherr.Errorf(
			"Filesystem size %d for '%s' is not a multiple of the block size", sizeBytes, partitionPath)
	}

	blocks := strconv.FormatUint(sizeBytes/FSBlockSize, 10)
	_, _, _, err := e.cmdRunner.RunCommand("resize2fs", "-f", partitionPath, blocks)
	if err != nil {
		return bosherr.WrapErrorf(err, "Resizing filesystem on '%s' to %s blocks", partitionPath, blocks)
	}

	e.logger.Debug(e.logTag, "Resized filesystem on '%s' to %s blocks", partitionPath, blocks)
	return nil
}
