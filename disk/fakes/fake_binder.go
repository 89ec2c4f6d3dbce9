package fakes

import (
	"fmt"

	imgdisk "github.com/copterspace/img-tool/disk"
)

type FakeBinder struct {
	Kind imgdisk.ImageKind

	BindImagePaths []string
	BindErr        error

	BindPartitionImagePaths []string
	BindPartitionOffsets    []uint64
	BindPartitionLimits     []uint64
	BindPartitionErr        error

	UnbindDevicePaths []string
	UnbindErr         error

	deviceCount int
	attached    map[string]bool
}

func NewFakeBinder() *FakeBinder {
	return &FakeBinder{
		Kind:     imgdisk.ImageKindFile,
		attached: map[string]bool{},
	}
}

func (b *FakeBinder) Bind(imagePath string) (imgdisk.LoopBinding, error) {
	b.BindImagePaths = append(b.BindImagePaths, imagePath)
	if b.BindErr != nil {
		return imgdisk.LoopBinding{}, b.BindErr
	}
	return b.newBinding(imagePath, 0, 0), nil
}

func (b *FakeBinder) BindPartition(imagePath string, offsetBytes, limitBytes uint64) (imgdisk.LoopBinding, error) {
	b.BindPartitionImagePaths = append(b.BindPartitionImagePaths, imagePath)
	b.BindPartitionOffsets = append(b.BindPartitionOffsets, offsetBytes)
	b.BindPartitionLimits = append(b.BindPartitionLimits, limitBytes)
	if b.BindPartitionErr != nil {
		return imgdisk.LoopBinding{}, b.BindPartitionErr
	}
	return b.newBinding(imagePath, offsetBytes, limitBytes), nil
}

func (b *FakeBinder) Unbind(binding *imgdisk.LoopBinding) error {
	if binding == nil || !b.attached[binding.DevicePath] {
		return nil
	}
	if b.UnbindErr != nil {
		return b.UnbindErr
	}
	delete(b.attached, binding.DevicePath)
	b.UnbindDevicePaths = append(b.UnbindDevicePaths, binding.DevicePath)
	return nil
}

// AttachedCount reports bindings handed out but not yet released.
func (b *FakeBinder) AttachedCount() int {
	return len(b.attached)
}

func (b *FakeBinder) newBinding(imagePath string, offsetBytes, limitBytes uint64) imgdisk.LoopBinding {
	b.deviceCount++
	devicePath := fmt.Sprintf("/dev/loop%d", b.deviceCount)
	b.attached[devicePath] = true
	return imgdisk.LoopBinding{
		DevicePath:  devicePath,
		ImagePath:   imagePath,
		Kind:        b.Kind,
		OffsetBytes: offsetBytes,
		LimitBytes:  limitBytes,
	}
}
