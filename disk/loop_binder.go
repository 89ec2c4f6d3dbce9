package disk

import (
	"os"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	imgerr "github.com/copterspace/img-tool/errors"
)

type ImageKind string

const (
	ImageKindFile        ImageKind = "file"
	ImageKindBlockDevice ImageKind = "blockDevice"
)

// LoopBinding exposes an image as a block device. For block-special images
// the binding is the identity and no loop device is allocated. A binding with
// a non-zero offset or limit is a window into the image, used to reach a
// single partition.
type LoopBinding struct {
	DevicePath  string
	ImagePath   string
	Kind        ImageKind
	OffsetBytes uint64
	LimitBytes  uint64

	attached bool
}

// Binder owns the loop-device lifecycle. Exactly one binding may exist per
// image at a time; every binding obtained must be released via Unbind, which
// is idempotent so cleanup paths may call it repeatedly.
type Binder interface {
	Bind(imagePath string) (LoopBinding, error)
	BindPartition(imagePath string, offsetBytes, limitBytes uint64) (LoopBinding, error)
	Unbind(binding *LoopBinding) error
}

const loopSettleDelay = 500 * time.Millisecond

type losetupBinder struct {
	logger      boshlog.Logger
	cmdRunner   boshsys.CmdRunner
	fs          boshsys.FileSystem
	timeService clock.Clock
	logTag      string
}

func NewLosetupBinder(
	logger boshlog.Logger,
	cmdRunner boshsys.CmdRunner,
	fs boshsys.FileSystem,
	timeService clock.Clock,
) Binder {
	return losetupBinder{
		logger:      logger,
		cmdRunner:   cmdRunner,
		fs:          fs,
		timeService: timeService,
		logTag:      "LosetupBinder",
	}
}

func (b losetupBinder) Bind(imagePath string) (LoopBinding, error) {
	kind, err := b.imageKind(imagePath)
	if err != nil {
		return LoopBinding{}, err
	}

	if kind == ImageKindBlockDevice {
		b.logger.Debug(b.logTag, "'%s' is block special, binding is the identity", imagePath)
		return LoopBinding{DevicePath: imagePath, ImagePath: imagePath, Kind: kind}, nil
	}

	if err := b.checkBootSignature(imagePath); err != nil {
		return LoopBinding{}, err
	}

	devicePath, err := b.attach(imagePath, "--find", "--show", imagePath)
	if err != nil {
		return LoopBinding{}, err
	}

	return LoopBinding{
		DevicePath: devicePath,
		ImagePath:  imagePath,
		Kind:       kind,
		attached:   true,
	}, nil
}

func (b losetupBinder) BindPartition(imagePath string, offsetBytes, limitBytes uint64) (LoopBinding, error) {
	kind, err := b.imageKind(imagePath)
	if err != nil {
		return LoopBinding{}, err
	}

	devicePath, err := b.attach(imagePath,
		"--find", "--show",
		"-o", strconv.FormatUint(offsetBytes, 10),
		"--sizelimit", strconv.FormatUint(limitBytes, 10),
		imagePath,
	)
	if err != nil {
		return LoopBinding{}, err
	}

	return LoopBinding{
		DevicePath:  devicePath,
		ImagePath:   imagePath,
		Kind:        kind,
		OffsetBytes: offsetBytes,
		LimitBytes:  limitBytes,
		attached:    true,
	}, nil
}

// Unbind detaches the loop device if one was allocated. Detaching an
// already-detached or never-allocated binding is a no-op, not an error.
func (b losetupBinder) Unbind(binding *LoopBinding) error {
	if binding == nil || !binding.attached {
		return nil
	}

	_, _, _, err := b.cmdRunner.RunCommand("losetup", "-d", binding.DevicePath)
	if err != nil {
		return imgerr.WrapCleanupError(err, "Detaching '"+binding.DevicePath+"'")
	}

	binding.attached = false
	b.logger.Debug(b.logTag, "Detached '%s' from '%s'", binding.DevicePath, binding.ImagePath)
	return nil
}

func (b losetupBinder) attach(imagePath string, losetupArgs ...string) (string, error) {
	stdout, _, _, err := b.cmdRunner.RunCommand("losetup", losetupArgs...)
	if err != nil {
		return "", imgerr.WrapBindError(err, "Attaching '"+imagePath+"' to a loop device")
	}

	devicePath := strings.TrimSpace(stdout)
	if devicePath == "" {
		return "", imgerr.WrapBindError(nil, "losetup returned no device for '"+imagePath+"'")
	}

	// give the kernel a moment to publish the new node
	b.cmdRunner.RunCommand("udevadm", "settle") //nolint:errcheck
	b.timeService.Sleep(loopSettleDelay)

	b.logger.Debug(b.logTag, "Attached '%s' to '%s'", imagePath, devicePath)
	return devicePath, nil
}

func (b losetupBinder) imageKind(imagePath string) (ImageKind, error) {
	info, err := b.fs.Stat(imagePath)
	if err != nil {
		return "", imgerr.WrapValidationError(err, "Image '"+imagePath+"' is not accessible")
	}

	if info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0 {
		return ImageKindBlockDevice, nil
	}

	if info.Mode().IsRegular() {
		return ImageKindFile, nil
	}

	return "", imgerr.NewValidationErrorf("Image '%s' is neither a regular file nor block special", imagePath)
}

func (b losetupBinder) checkBootSignature(imagePath string) error {
	file, err := b.fs.OpenFile(imagePath, os.O_RDONLY, 0)
	if err != nil {
		return imgerr.WrapValidationError(err, "Opening image '"+imagePath+"'")
	}
	defer file.Close() //nolint:errcheck

	sector := make([]byte, SectorSize)
	n, err := file.ReadAt(sector, 0)
	if n < SectorSize {
		return imgerr.WrapValidationError(err, "Image '"+imagePath+"' is smaller than one sector")
	}

	if sector[510] != 0x55 || sector[511] != 0xaa {
		return imgerr.NewValidationErrorf("Image '%s' has no boot sector signature", imagePath)
	}

	return nil
}
