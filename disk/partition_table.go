package disk

import "fmt"

// SectorSize is the logical sector size the loop-device layer exposes.
// All on-table geometry is expressed in these units.
const SectorSize = 512

// FSBlockSize is the ext4 block granularity the resize tooling works in.
const FSBlockSize = 4096

type PartitionType string

const (
	PartitionTypeLinux   PartitionType = "linux"
	PartitionTypeFAT     PartitionType = "fat"
	PartitionTypeUnknown PartitionType = "unknown"
)

type Partition struct {
	Index       int
	Type        PartitionType
	StartSector uint64
	SizeSectors uint64
}

func (p Partition) StartInBytes() uint64 { return p.StartSector * SectorSize }
func (p Partition) SizeInBytes() uint64  { return p.SizeSectors * SectorSize }
func (p Partition) EndInBytes() uint64   { return p.StartInBytes() + p.SizeInBytes() }

func (p Partition) String() string {
	return fmt.Sprintf("[Index: %d, Type: %s, StartSector: %d, SizeSectors: %d]",
		p.Index, p.Type, p.StartSector, p.SizeSectors)
}

// PartitionTable is the parsed geometry of a disk image. DiskID is the dos
// disk identifier (lowercase hex, no 0x prefix); it changes whenever the
// table is rewritten.
type PartitionTable struct {
	DiskID     string
	Partitions []Partition
}

// Last returns the trailing partition entry.
func (t PartitionTable) Last() Partition {
	return t.Partitions[len(t.Partitions)-1]
}

func RoundUp(n, multiple uint64) uint64 {
	if multiple == 0 {
		return n
	}
	remainder := n % multiple
	if remainder == 0 {
		return n
	}
	return n + multiple - remainder
}

func RoundDown(n, multiple uint64) uint64 {
	if multiple == 0 {
		return n
	}
	return n - n%multiple
}
