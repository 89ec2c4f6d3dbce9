package disk_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/copterspace/img-tool/disk"
)

var _ = Describe("PartitionTable", func() {
	Describe("Partition", func() {
		It("converts sector geometry to bytes", func() {
			partition := Partition{StartSector: 514, SizeSectors: 8192}

			Expect(partition.StartInBytes()).To(Equal(uint64(263168)))
			Expect(partition.SizeInBytes()).To(Equal(uint64(4194304)))
			Expect(partition.EndInBytes()).To(Equal(uint64(4457472)))
		})
	})

	Describe("Last", func() {
		It("returns the final entry", func() {
			table := PartitionTable{
				Partitions: []Partition{
					{Index: 1, StartSector: 0, SizeSectors: 512},
					{Index: 2, StartSector: 514, SizeSectors: 8192},
				},
			}

			Expect(table.Last().Index).To(Equal(2))
		})
	})

	Describe("RoundUp", func() {
		It("rounds to the next multiple", func() {
			Expect(RoundUp(0, 512)).To(Equal(uint64(0)))
			Expect(RoundUp(1, 512)).To(Equal(uint64(512)))
			Expect(RoundUp(512, 512)).To(Equal(uint64(512)))
			Expect(RoundUp(513, 512)).To(Equal(uint64(1024)))
			Expect(RoundUp(10222080, 4096)).To(Equal(uint64(10223616)))
		})
	})

	Describe("RoundDown", func() {
		It("rounds to the previous multiple", func() {
			Expect(RoundDown(511, 512)).To(Equal(uint64(0)))
			Expect(RoundDown(512, 512)).To(Equal(uint64(512)))
			Expect(RoundDown(1025, 512)).To(Equal(uint64(1024)))
		})
	})
})
