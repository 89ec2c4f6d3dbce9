package disk

// Mounter mounts and unmounts partitions and pseudo-filesystems. Unmount is
// lazy and forced, and retried; an already-unmounted path is a no-op.
type Mounter interface {
	Mount(devicePath, mountPoint string, mountOptions ...string) error
	MountFilesystem(devicePath, mountPoint, fstype string, mountOptions ...string) error
	Unmount(mountPoint string) (didUnmount bool, err error)
	IsMounted(path string) (bool, error)
}

// MountsSearcher answers whether a path is currently a mount point.
type MountsSearcher interface {
	IsMounted(path string) (bool, error)
}
