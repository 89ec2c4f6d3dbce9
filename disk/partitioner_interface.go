package disk

// Partitioner reads and edits the partition table of a device or image file.
//
// Byte arguments to AppendPartition must be sector-aligned; the partitioner
// converts them to sectors before handing them to the table editor.
type Partitioner interface {
	Inspect(devicePath string) (PartitionTable, error)
	DeletePartition(devicePath string, index int) error
	AppendPartition(devicePath string, startBytes, sizeBytes uint64, partitionType PartitionType) error
	GetDeviceSizeInBytes(devicePath string) (uint64, error)
}
