package resize_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	boshlog "github.com/cloudfoundry/bosh-utils/logger"

	"github.com/copterspace/img-tool/disk"
	diskfakes "github.com/copterspace/img-tool/disk/fakes"
	imgerr "github.com/copterspace/img-tool/errors"
	"github.com/copterspace/img-tool/resize"
	resizefakes "github.com/copterspace/img-tool/resize/fakes"
	sessionfakes "github.com/copterspace/img-tool/session/fakes"
)

var _ = Describe("engine", func() {
	var (
		binder      *diskfakes.FakeBinder
		partitioner *diskfakes.FakePartitioner
		ext4        *diskfakes.FakeExt4FileSystem
		sizer       *diskfakes.FakeImageSizer
		opener      *sessionfakes.FakeOpener
		fixer       *resizefakes.FakePartUUIDFixer
		order       []string
		engine      resize.Engine
	)

	const imagePath = "/images/rootfs.img"

	// root starts at sector 514 (263168 bytes) and spans 8192 sectors
	// (4194304 bytes); the image ends one sector past the partition.
	bootRootTable := disk.PartitionTable{
		DiskID: "36c1e982",
		Partitions: []disk.Partition{
			{Index: 1, Type: disk.PartitionTypeFAT, StartSector: 0, SizeSectors: 512},
			{Index: 2, Type: disk.PartitionTypeLinux, StartSector: 514, SizeSectors: 8192},
		},
	}

	newSize := func(n uint64) *uint64 { return &n }

	BeforeEach(func() {
		logger := boshlog.NewLogger(boshlog.LevelNone)
		binder = diskfakes.NewFakeBinder()
		partitioner = diskfakes.NewFakePartitioner()
		partitioner.InspectTable = bootRootTable
		ext4 = &diskfakes.FakeExt4FileSystem{MinimumSizeBytes: 1048576}
		sizer = &diskfakes.FakeImageSizer{CurrentSizeBytes: 4457984, AllocatedSizeBytes: 3000000}
		opener = &sessionfakes.FakeOpener{}
		fixer = &resizefakes.FakePartUUIDFixer{}

		order = nil
		partitioner.Order = &order
		ext4.Order = &order
		sizer.Order = &order

		engine = resize.NewEngine(logger, binder, partitioner, ext4, sizer, opener, fixer)
	})

	Describe("geometry report", func() {
		It("checks the filesystem through a partition window and reports sizes", func() {
			report, err := engine.Resize(imagePath, nil)
			Expect(err).ToNot(HaveOccurred())

			Expect(report.MinimumBytes).To(Equal(uint64(263168 + 1048576 + 512)))
			Expect(report.CurrentBytes).To(Equal(uint64(4457984)))
			Expect(report.AllocatedBytes).To(Equal(uint64(3000000)))
			Expect(report.Resized).To(BeFalse())

			Expect(binder.BindPartitionOffsets).To(Equal([]uint64{263168}))
			Expect(binder.BindPartitionLimits).To(Equal([]uint64{4194304}))
			Expect(ext4.CheckPartitionPaths).To(HaveLen(1))

			Expect(order).To(BeEmpty())
			Expect(binder.AttachedCount()).To(BeZero())
		})
	})

	Describe("growing a file-backed image", func() {
		It("extends the file, rewrites the table entry and grows the filesystem", func() {
			partitioner.InspectTables[imagePath] = rewrittenTable("9f3c2a10")

			report, err := engine.Resize(imagePath, newSize(10485760))
			Expect(err).ToNot(HaveOccurred())

			// 10485760 - 263168 - 512 rounded up to the next 4096 multiple
			Expect(partitioner.DeletePartitionIndex).To(Equal(2))
			Expect(partitioner.AppendPartitionStartBytes).To(Equal(uint64(263168)))
			Expect(partitioner.AppendPartitionSizeBytes).To(Equal(uint64(10223616)))
			Expect(partitioner.AppendPartitionType).To(Equal(disk.PartitionTypeLinux))

			Expect(sizer.TruncateSizes).To(Equal([]uint64{263168 + 10223616 + 512}))
			Expect(ext4.ResizeSizes).To(Equal([]uint64{10223616}))
			Expect(order).To(Equal([]string{"truncate", "delete-partition", "append-partition", "fs-resize"}))

			// the filesystem is grown through a window sized to the new entry
			Expect(binder.BindPartitionLimits).To(Equal([]uint64{4194304, 10223616}))

			Expect(report.AppliedBytes).To(Equal(uint64(10487296)))
			Expect(report.Resized).To(BeTrue())
			Expect(binder.AttachedCount()).To(BeZero())
		})
	})

	Describe("shrinking a file-backed image", func() {
		It("shrinks the filesystem before the table rewrite and the truncation", func() {
			report, err := engine.Resize(imagePath, newSize(2097152))
			Expect(err).ToNot(HaveOccurred())

			Expect(order).To(Equal([]string{"fs-resize", "delete-partition", "append-partition", "truncate"}))
			Expect(ext4.ResizeSizes).To(Equal([]uint64{1835008}))
			Expect(partitioner.AppendPartitionSizeBytes).To(Equal(uint64(1835008)))
			Expect(sizer.TruncateSizes).To(Equal([]uint64{263168 + 1835008 + 512}))

			Expect(report.AppliedBytes).To(Equal(uint64(2098688)))
			Expect(report.Resized).To(BeTrue())
			Expect(binder.AttachedCount()).To(BeZero())
		})
	})

	Describe("constraints", func() {
		It("rejects a target below the minimum image size without destructive steps", func() {
			_, err := engine.Resize(imagePath, newSize(1000000))
			Expect(err).To(HaveOccurred())
			Expect(imgerr.IsResizeConstraint(err)).To(BeTrue())

			Expect(order).To(BeEmpty())
			Expect(binder.AttachedCount()).To(BeZero())
		})

		It("succeeds as a no-op when the target equals the current length", func() {
			report, err := engine.Resize(imagePath, newSize(4457984))
			Expect(err).ToNot(HaveOccurred())

			Expect(report.AppliedBytes).To(Equal(uint64(4457984)))
			Expect(report.Resized).To(BeFalse())

			Expect(order).To(BeEmpty())
			Expect(opener.OpenImagePaths).To(BeEmpty())
			Expect(binder.AttachedCount()).To(BeZero())
		})

		It("rejects corrupt filesystems before any size is computed", func() {
			ext4.CheckErr = errors.New("e2fsck: bad magic number in super-block")

			_, err := engine.Resize(imagePath, newSize(2097152))
			Expect(err).To(HaveOccurred())
			Expect(imgerr.IsValidation(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("filesystem may be corrupt"))

			Expect(order).To(BeEmpty())
			Expect(binder.AttachedCount()).To(BeZero())
		})

		It("rejects images whose last partition is not a Linux filesystem", func() {
			partitioner.InspectTable = disk.PartitionTable{
				Partitions: []disk.Partition{
					{Index: 1, Type: disk.PartitionTypeLinux, StartSector: 0, SizeSectors: 512},
					{Index: 2, Type: disk.PartitionTypeFAT, StartSector: 514, SizeSectors: 8192},
				},
			}

			_, err := engine.Resize(imagePath, newSize(10485760))
			Expect(err).To(HaveOccurred())
			Expect(imgerr.IsValidation(err)).To(BeTrue())

			Expect(binder.BindPartitionImagePaths).To(BeEmpty())
			Expect(binder.AttachedCount()).To(BeZero())
		})

		It("rejects images whose last partition ends past the image", func() {
			sizer.CurrentSizeBytes = 4000000

			_, err := engine.Resize(imagePath, newSize(10485760))
			Expect(err).To(HaveOccurred())
			Expect(imgerr.IsValidation(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("past the image end"))
		})

		It("rejects tables where the trailing entry does not have the largest start", func() {
			partitioner.InspectTable = disk.PartitionTable{
				Partitions: []disk.Partition{
					{Index: 1, Type: disk.PartitionTypeFAT, StartSector: 9000, SizeSectors: 512},
					{Index: 2, Type: disk.PartitionTypeLinux, StartSector: 514, SizeSectors: 8192},
				},
			}

			_, err := engine.Resize(imagePath, newSize(10485760))
			Expect(err).To(HaveOccurred())
			Expect(imgerr.IsValidation(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("not the last on disk"))
		})
	})

	Describe("block devices", func() {
		BeforeEach(func() {
			binder.Kind = disk.ImageKindBlockDevice
		})

		It("never truncates the backing device", func() {
			ext4.MinimumSizeBytes = 4000000
			sizer.CurrentSizeBytes = 4457984
			sizer.AllocatedSizeBytes = 4457984

			report, err := engine.Resize(imagePath, newSize(4300000))
			Expect(err).ToNot(HaveOccurred())

			Expect(sizer.TruncatePaths).To(BeEmpty())
			Expect(partitioner.AppendPartitionSizeBytes).To(Equal(uint64(4038656)))
			Expect(report.AppliedBytes).To(Equal(uint64(263168 + 4038656 + 512)))
			Expect(report.Resized).To(BeTrue())
			Expect(binder.AttachedCount()).To(BeZero())
		})

		It("rejects growth the device capacity cannot hold", func() {
			partitioner.InspectTable = disk.PartitionTable{
				DiskID: "36c1e982",
				Partitions: []disk.Partition{
					{Index: 1, Type: disk.PartitionTypeFAT, StartSector: 0, SizeSectors: 512},
					{Index: 2, Type: disk.PartitionTypeLinux, StartSector: 514, SizeSectors: 8184},
				},
			}
			ext4.MinimumSizeBytes = 4194304
			sizer.CurrentSizeBytes = 4453888
			sizer.AllocatedSizeBytes = 4453888

			_, err := engine.Resize(imagePath, newSize(5000000))
			Expect(err).To(HaveOccurred())
			Expect(imgerr.IsResizeConstraint(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("too small"))

			Expect(order).To(BeEmpty())
			Expect(binder.AttachedCount()).To(BeZero())
		})

		It("rejects a device smaller than the partition start", func() {
			ext4.MinimumSizeBytes = 0
			sizer.CurrentSizeBytes = 4457984
			sizer.AllocatedSizeBytes = 200000

			_, err := engine.Resize(imagePath, newSize(300000))
			Expect(err).To(HaveOccurred())
			Expect(imgerr.IsResizeConstraint(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("too small"))

			Expect(order).To(BeEmpty())
			Expect(binder.AttachedCount()).To(BeZero())
		})
	})

	Describe("disk identifier propagation", func() {
		It("opens a mount session to rewrite the regenerated identifier", func() {
			partitioner.InspectTables[imagePath] = rewrittenTable("9f3c2a10")

			_, err := engine.Resize(imagePath, newSize(2097152))
			Expect(err).ToNot(HaveOccurred())

			Expect(opener.OpenImagePaths).To(Equal([]string{imagePath}))
			Expect(fixer.WorkImagePaths).To(Equal([]string{imagePath}))
			Expect(fixer.WorkOldIDs).To(Equal([]string{"36c1e982"}))
		})

		It("skips the rewrite when the identifier is unchanged", func() {
			partitioner.InspectTables[imagePath] = rewrittenTable("36c1e982")

			_, err := engine.Resize(imagePath, newSize(2097152))
			Expect(err).ToNot(HaveOccurred())

			Expect(opener.OpenImagePaths).To(BeEmpty())
		})

		It("reports success even when the identifier rewrite fails", func() {
			partitioner.InspectTables[imagePath] = rewrittenTable("9f3c2a10")
			opener.OpenErr = errors.New("mount: device busy")
			opener.OpenExitCode = 1

			report, err := engine.Resize(imagePath, newSize(2097152))
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Resized).To(BeTrue())
		})
	})
})

func rewrittenTable(diskID string) disk.PartitionTable {
	return disk.PartitionTable{
		DiskID: diskID,
		Partitions: []disk.Partition{
			{Index: 1, Type: disk.PartitionTypeFAT, StartSector: 0, SizeSectors: 512},
			{Index: 2, Type: disk.PartitionTypeLinux, StartSector: 514, SizeSectors: 8192},
		},
	}
}
