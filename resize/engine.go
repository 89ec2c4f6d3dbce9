// Package resize recomputes sector-aligned partition geometry and resizes an
// image's trailing filesystem partition together with its partition-table
// entry and backing storage, without data loss.
package resize

import (
	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"

	"github.com/copterspace/img-tool/disk"
	imgerr "github.com/copterspace/img-tool/errors"
	"github.com/copterspace/img-tool/session"
)

// Report describes the geometry of an image. AppliedBytes and Resized are
// populated only when a target size was requested.
type Report struct {
	MinimumBytes   uint64
	CurrentBytes   uint64
	AllocatedBytes uint64
	AppliedBytes   uint64
	Resized        bool
}

type Engine interface {
	// Resize shrinks or grows imagePath to newSize bytes. With a nil newSize
	// only geometry is reported. The requested size is rounded up to the next
	// sector; the partition length ends up filesystem-block aligned.
	Resize(imagePath string, newSize *uint64) (Report, error)
}

type engine struct {
	logger      boshlog.Logger
	binder      disk.Binder
	partitioner disk.Partitioner
	ext4        disk.Ext4FileSystem
	sizer       disk.ImageSizer
	sessions    session.Opener
	fixer       PartUUIDFixer
	logTag      string
}

func NewEngine(
	logger boshlog.Logger,
	binder disk.Binder,
	partitioner disk.Partitioner,
	ext4 disk.Ext4FileSystem,
	sizer disk.ImageSizer,
	sessions session.Opener,
	fixer PartUUIDFixer,
) Engine {
	return engine{
		logger:      logger,
		binder:      binder,
		partitioner: partitioner,
		ext4:        ext4,
		sizer:       sizer,
		sessions:    sessions,
		fixer:       fixer,
		logTag:      "ResizeEngine",
	}
}

func (e engine) Resize(imagePath string, newSize *uint64) (Report, error) {
	var report Report

	binding, err := e.binder.Bind(imagePath)
	if err != nil {
		return report, err
	}
	kind := binding.Kind

	// the binding in play must be released on every exit path
	defer func() {
		if err := e.binder.Unbind(&binding); err != nil {
			e.logger.Error(e.logTag, "Releasing loop binding: %s", err.Error())
		}
	}()

	table, err := e.partitioner.Inspect(binding.DevicePath)
	if err != nil {
		return report, err
	}

	part := table.Last()
	startBytes := part.StartInBytes()

	currentLen, err := e.sizer.CurrentSizeInBytes(imagePath, kind)
	if err != nil {
		return report, err
	}

	if err := validateTarget(table, currentLen); err != nil {
		return report, err
	}

	// filesystem work happens through a window onto the partition
	if err := e.rebindWindow(&binding, imagePath, startBytes, part.SizeInBytes()); err != nil {
		return report, err
	}

	if err := e.ext4.Check(binding.DevicePath); err != nil {
		return report, imgerr.WrapValidationError(err, "filesystem may be corrupt")
	}

	minFS, err := e.ext4.MinimumSizeInBytes(binding.DevicePath)
	if err != nil {
		return report, bosherr.WrapError(err, "Estimating minimum filesystem size")
	}

	minImage := startBytes + minFS + disk.SectorSize

	objectBytes, err := e.sizer.AllocatedSizeInBytes(imagePath, kind)
	if err != nil {
		return report, err
	}

	report = Report{
		MinimumBytes:   minImage,
		CurrentBytes:   currentLen,
		AllocatedBytes: objectBytes,
	}

	if newSize == nil {
		return report, nil
	}

	// image length is aligned by the loop layer, the partition by the
	// filesystem tooling
	target := disk.RoundUp(*newSize, disk.SectorSize)
	if target < minImage {
		return report, imgerr.NewResizeConstraintErrorf(
			"target %d bytes is below the minimum image size of %d bytes", target, minImage)
	}

	newPartLen := disk.RoundUp(target-startBytes-disk.SectorSize, disk.FSBlockSize)
	if kind == disk.ImageKindBlockDevice {
		for startBytes+newPartLen+disk.SectorSize > objectBytes {
			if newPartLen < minFS+disk.FSBlockSize {
				return report, imgerr.NewResizeConstraintErrorf(
					"filesystem needs %d bytes, device capacity of %d bytes is too small", minFS, objectBytes)
			}
			newPartLen -= disk.FSBlockSize
		}
		target = startBytes + newPartLen + disk.SectorSize
	}

	if target == currentLen {
		e.logger.Info(e.logTag, "'%s' is already %d bytes", imagePath, target)
		report.AppliedBytes = target
		return report, nil
	}

	if kind == disk.ImageKindBlockDevice && target > objectBytes {
		return report, imgerr.NewResizeConstraintErrorf(
			"target %d bytes exceeds the device capacity of %d bytes", target, objectBytes)
	}

	// the on-disk length the partition geometry actually implies
	appliedLen := startBytes + newPartLen + disk.SectorSize

	if target < currentLen {
		err = e.shrink(&binding, imagePath, part, newPartLen)
	} else {
		err = e.grow(&binding, imagePath, part, newPartLen, appliedLen)
	}
	if err != nil {
		return report, err
	}

	report.AppliedBytes = appliedLen
	report.Resized = true

	e.fixIdentifier(&binding, imagePath, table.DiskID)

	return report, nil
}

// shrink reduces the filesystem first so the table rewrite and the backing
// truncation never cut into live data.
func (e engine) shrink(binding *disk.LoopBinding, imagePath string, part disk.Partition, newPartLen uint64) error {
	if err := e.ext4.Resize(binding.DevicePath, newPartLen); err != nil {
		return err
	}

	if err := e.rebindRaw(binding, imagePath); err != nil {
		return err
	}

	startBytes := part.StartInBytes()
	if err := e.rewriteEntry(binding.DevicePath, part.Index, startBytes, newPartLen); err != nil {
		return err
	}

	if binding.Kind == disk.ImageKindFile {
		return e.sizer.Truncate(imagePath, startBytes+newPartLen+disk.SectorSize)
	}
	// block devices keep their physical size
	return nil
}

// grow extends the backing storage and the table entry before the filesystem
// so the filesystem never outgrows its container.
func (e engine) grow(binding *disk.LoopBinding, imagePath string, part disk.Partition, newPartLen, target uint64) error {
	if err := e.binder.Unbind(binding); err != nil {
		return err
	}

	if binding.Kind == disk.ImageKindFile {
		if err := e.sizer.Truncate(imagePath, target); err != nil {
			return err
		}
	}

	if err := e.rebindRaw(binding, imagePath); err != nil {
		return err
	}

	startBytes := part.StartInBytes()
	if err := e.rewriteEntry(binding.DevicePath, part.Index, startBytes, newPartLen); err != nil {
		return err
	}

	if err := e.rebindWindow(binding, imagePath, startBytes, newPartLen); err != nil {
		return err
	}

	return e.ext4.Resize(binding.DevicePath, newPartLen)
}

// fixIdentifier propagates the regenerated disk identifier into the rootfs.
// It is best-effort: failures are logged and swallowed so the final binding
// release is never skipped.
func (e engine) fixIdentifier(binding *disk.LoopBinding, imagePath, oldID string) {
	// the nested mount session takes exclusive ownership of the image
	if err := e.binder.Unbind(binding); err != nil {
		e.logger.Error(e.logTag, "Releasing loop binding before identifier fix: %s", err.Error())
		return
	}

	newTable, err := e.partitioner.Inspect(imagePath)
	if err != nil {
		e.logger.Error(e.logTag, "Re-inspecting disk identifier: %s", err.Error())
		return
	}
	if newTable.DiskID == "" || newTable.DiskID == oldID {
		return
	}

	if _, err := e.sessions.Open(imagePath, e.fixer.Work(imagePath, oldID), nil); err != nil {
		e.logger.Error(e.logTag, "Propagating disk identifier: %s", err.Error())
	}
}

func (e engine) rewriteEntry(devicePath string, index int, startBytes, sizeBytes uint64) error {
	if err := e.partitioner.DeletePartition(devicePath, index); err != nil {
		return err
	}
	return e.partitioner.AppendPartition(devicePath, startBytes, sizeBytes, disk.PartitionTypeLinux)
}

func (e engine) rebindRaw(binding *disk.LoopBinding, imagePath string) error {
	if err := e.binder.Unbind(binding); err != nil {
		return err
	}
	raw, err := e.binder.Bind(imagePath)
	if err != nil {
		return err
	}
	*binding = raw
	return nil
}

func (e engine) rebindWindow(binding *disk.LoopBinding, imagePath string, offsetBytes, limitBytes uint64) error {
	if err := e.binder.Unbind(binding); err != nil {
		return err
	}
	window, err := e.binder.BindPartition(imagePath, offsetBytes, limitBytes)
	if err != nil {
		return err
	}
	*binding = window
	return nil
}

// validateTarget requires the trailing partition to be Linux-typed and to end
// within the image; resizing anything else is unsupported.
func validateTarget(table disk.PartitionTable, currentLen uint64) error {
	part := table.Last()

	if part.Type != disk.PartitionTypeLinux {
		return imgerr.NewValidationErrorf(
			"last partition is %s, expected a Linux filesystem", part.Type)
	}

	if part.EndInBytes() > currentLen {
		return imgerr.NewValidationErrorf(
			"last partition ends at %d bytes, past the image end at %d bytes", part.EndInBytes(), currentLen)
	}

	for _, other := range table.Partitions[:len(table.Partitions)-1] {
		if other.StartSector >= part.StartSector {
			return imgerr.NewValidationErrorf(
				"partition %d is not the last on disk", part.Index)
		}
	}

	return nil
}
