package fakes

type FakeExt4FileSystem struct {
	CheckPartitionPaths []string
	CheckErr            error

	MinimumSizeBytes          uint64
	MinimumSizePartitionPaths []string
	MinimumSizeErr            error

	ResizePartitionPaths []string
	ResizeSizes          []uint64
	ResizeErr            error

	Order *[]string
}

func (f *FakeExt4FileSystem) Check(partitionPath string) error {
	f.CheckPartitionPaths = append(f.CheckPartitionPaths, partitionPath)
	return f.CheckErr
}

func (f *FakeExt4FileSystem) MinimumSizeInBytes(partitionPath string) (uint64, error) {
	f.MinimumSizePartitionPaths = append(f.MinimumSizePartitionPaths, partitionPath)
	return f.MinimumSizeBytes, f.MinimumSizeErr
}

func (f *FakeExt4FileSystem) Resize(partitionPath string, sizeBytes uint64) error {
	f.ResizePartitionPaths = append(f.ResizePartitionPaths, partitionPath)
	f.ResizeSizes = append(f.ResizeSizes, sizeBytes)
	if f.Order != nil {
		*f.Order = append(*f.Order, "fs-resize")
	}
	return f.ResizeErr
}
