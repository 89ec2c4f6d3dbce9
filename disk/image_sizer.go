package disk

import (
	"os"
	"strconv"
	"strings"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshsys "github.com/cloudfoundry/bosh-utils/system"
	"golang.org/x/sys/unix"
)

// ImageSizer reports and adjusts the backing storage of an image.
//
// CurrentSizeInBytes is the logical image length. AllocatedSizeInBytes is the
// object size: blocks actually allocated for file-backed images (sparse files
// report less than their length), device capacity for block devices.
type ImageSizer interface {
	CurrentSizeInBytes(imagePath string, kind ImageKind) (uint64, error)
	AllocatedSizeInBytes(imagePath string, kind ImageKind) (uint64, error)
	Truncate(imagePath string, sizeBytes uint64) error
}

type localImageSizer struct {
	cmdRunner boshsys.CmdRunner
}

func NewLocalImageSizer(cmdRunner boshsys.CmdRunner) ImageSizer {
	return localImageSizer{cmdRunner: cmdRunner}
}

func (s localImageSizer) CurrentSizeInBytes(imagePath string, kind ImageKind) (uint64, error) {
	if kind == ImageKindBlockDevice {
		return s.deviceSizeInBytes(imagePath)
	}

	info, err := os.Stat(imagePath)
	if err != nil {
		return 0, bosherr.WrapErrorf(err, "Getting size of '%s'", imagePath)
	}
	return uint64(info.Size()), nil
}

func (s localImageSizer) AllocatedSizeInBytes(imagePath string, kind ImageKind) (uint64, error) {
	if kind == ImageKindBlockDevice {
		return s.deviceSizeInBytes(imagePath)
	}

	var stat unix.Stat_t
	if err := unix.Stat(imagePath, &stat); err != nil {
		return 0, bosherr.WrapErrorf(err, "Getting allocated size of '%s'", imagePath)
	}
	// st_blocks is in 512-byte units regardless of the filesystem block size
	return uint64(stat.Blocks) * 512, nil
}

func (s localImageSizer) Truncate(imagePath string, sizeBytes uint64) error {
	if err := os.Truncate(imagePath, int64(sizeBytes)); err != nil {
		return bosherr.WrapErrorf(err, "Truncating '%s' to %d bytes", imagePath, sizeBytes)
	}
	return nil
}

func (s localImageSizer) deviceSizeInBytes(devicePath string) (uint64, error) {
	stdout, _, _, err := s.cmdRunner.RunCommand("blockdev", "--getsize64", devicePath)
	if err != nil {
		return 0, bosherr.WrapErrorf(err, "Getting capacity of '%s'", devicePath)
	}

	size, err := strconv.ParseUint(strings.TrimSpace(stdout), 10, 64)
	if err != nil {
		return 0, bosherr.WrapErrorf(err, "Converting capacity of '%s'", devicePath)
	}
	return size, nil
}
