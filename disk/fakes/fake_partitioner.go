package fakes

import (
	imgdisk "github.com/copterspace/img-tool/disk"
)

type FakePartitioner struct {
	InspectTable       imgdisk.PartitionTable
	InspectTables      map[string]imgdisk.PartitionTable
	InspectErr         error
	InspectDevicePaths []string

	DeletePartitionCalled     bool
	DeletePartitionDevicePath string
	DeletePartitionIndex      int
	DeletePartitionErr        error

	AppendPartitionCalled     bool
	AppendPartitionDevicePath string
	AppendPartitionStartBytes uint64
	AppendPartitionSizeBytes  uint64
	AppendPartitionType       imgdisk.PartitionType
	AppendPartitionErr        error

	GetDeviceSizeInBytesSizes map[string]uint64
	GetDeviceSizeInBytesErr   error

	Order *[]string
}

func NewFakePartitioner() *FakePartitioner {
	return &FakePartitioner{
		InspectTables:             map[string]imgdisk.PartitionTable{},
		GetDeviceSizeInBytesSizes: map[string]uint64{},
	}
}

func (p *FakePartitioner) Inspect(devicePath string) (imgdisk.PartitionTable, error) {
	p.InspectDevicePaths = append(p.InspectDevicePaths, devicePath)
	if p.InspectErr != nil {
		return imgdisk.PartitionTable{}, p.InspectErr
	}
	if table, found := p.InspectTables[devicePath]; found {
		return table, nil
	}
	return p.InspectTable, nil
}

func (p *FakePartitioner) DeletePartition(devicePath string, index int) error {
	p.DeletePartitionCalled = true
	p.DeletePartitionDevicePath = devicePath
	p.DeletePartitionIndex = index
	p.note("delete-partition")
	return p.DeletePartitionErr
}

func (p *FakePartitioner) AppendPartition(devicePath string, startBytes, sizeBytes uint64, partitionType imgdisk.PartitionType) error {
	p.AppendPartitionCalled = true
	p.AppendPartitionDevicePath = devicePath
	p.AppendPartitionStartBytes = startBytes
	p.AppendPartitionSizeBytes = sizeBytes
	p.AppendPartitionType = partitionType
	p.note("append-partition")
	return p.AppendPartitionErr
}

func (p *FakePartitioner) GetDeviceSizeInBytes(devicePath string) (uint64, error) {
	return p.GetDeviceSizeInBytesSizes[devicePath], p.GetDeviceSizeInBytesErr
}

func (p *FakePartitioner) note(step string) {
	if p.Order != nil {
		*p.Order = append(*p.Order, step)
	}
}
