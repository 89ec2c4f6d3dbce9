package resize

import (
	"path/filepath"
	"strings"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	"github.com/copterspace/img-tool/disk"
	"github.com/copterspace/img-tool/session"
)

// rootfs files that reference the disk identifier
var identifierFiles = []string{"etc/fstab", "boot/cmdline.txt"}

// PartUUIDFixer rewrites a stale disk identifier in the mounted rootfs's
// persisted mount table and boot command line. Rewriting the partition table
// regenerates the identifier the bootloader locates the root filesystem by,
// so every resize ends with this pass.
type PartUUIDFixer interface {
	Work(imagePath, oldID string) session.Work
}

type partUUIDFixer struct {
	logger      boshlog.Logger
	partitioner disk.Partitioner
	fs          boshsys.FileSystem
	logTag      string
}

func NewPartUUIDFixer(
	logger boshlog.Logger,
	partitioner disk.Partitioner,
	fs boshsys.FileSystem,
) PartUUIDFixer {
	return partUUIDFixer{
		logger:      logger,
		partitioner: partitioner,
		fs:          fs,
		logTag:      "PartUUIDFixer",
	}
}

// Work returns a mount-session work step that substitutes every occurrence of
// oldID in the rootfs configuration with the image's current identifier.
func (f partUUIDFixer) Work(imagePath, oldID string) session.Work {
	return func(mountPoint string, _ []string) (int, error) {
		table, err := f.partitioner.Inspect(imagePath)
		if err != nil {
			return 1, err
		}
		if table.DiskID == "" || table.DiskID == oldID {
			return 0, nil
		}

		for _, relPath := range identifierFiles {
			path := filepath.Join(mountPoint, relPath)
			if !f.fs.FileExists(path) {
				continue
			}

			content, err := f.fs.ReadFileString(path)
			if err != nil {
				return 1, bosherr.WrapErrorf(err, "Reading '%s'", path)
			}

			updated := strings.ReplaceAll(content, oldID, table.DiskID)
			if updated == content {
				continue
			}

			if err := f.fs.WriteFileString(path, updated); err != nil {
				return 1, bosherr.WrapErrorf(err, "Rewriting '%s'", path)
			}

			f.logger.Info(f.logTag, "Replaced identifier %s with %s in '%s'", oldID, table.DiskID, path)
		}

		return 0, nil
	}
}
