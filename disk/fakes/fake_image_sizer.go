package fakes

import (
	imgdisk "github.com/copterspace/img-tool/disk"
)

type FakeImageSizer struct {
	CurrentSizeBytes uint64
	CurrentSizeErr   error

	AllocatedSizeBytes uint64
	AllocatedSizeErr   error

	TruncatePaths []string
	TruncateSizes []uint64
	TruncateErr   error

	Order *[]string
}

func (s *FakeImageSizer) CurrentSizeInBytes(imagePath string, kind imgdisk.ImageKind) (uint64, error) {
	return s.CurrentSizeBytes, s.CurrentSizeErr
}

func (s *FakeImageSizer) AllocatedSizeInBytes(imagePath string, kind imgdisk.ImageKind) (uint64, error) {
	return s.AllocatedSizeBytes, s.AllocatedSizeErr
}

func (s *FakeImageSizer) Truncate(imagePath string, sizeBytes uint64) error {
	s.TruncatePaths = append(s.TruncatePaths, imagePath)
	s.TruncateSizes = append(s.TruncateSizes, sizeBytes)
	if s.Order != nil {
		*s.Order = append(*s.Order, "truncate")
	}
	return s.TruncateErr
}
