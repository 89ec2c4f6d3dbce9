package fakes

type MountCall struct {
	DevicePath string
	MountPoint string
	Fstype     string
	Options    []string
}

type FakeMounter struct {
	MountCalls          []MountCall
	MountFilesystemErrs map[string]error // keyed by mount point

	UnmountPaths []string
	UnmountErrs  map[string]error
	UnmountDid   bool

	IsMountedResults map[string]bool
	IsMountedErr     error
}

func NewFakeMounter() *FakeMounter {
	return &FakeMounter{
		MountFilesystemErrs: map[string]error{},
		UnmountErrs:         map[string]error{},
		IsMountedResults:    map[string]bool{},
		UnmountDid:          true,
	}
}

func (m *FakeMounter) Mount(devicePath, mountPoint string, mountOptions ...string) error {
	return m.MountFilesystem(devicePath, mountPoint, "", mountOptions...)
}

func (m *FakeMounter) MountFilesystem(devicePath, mountPoint, fstype string, mountOptions ...string) error {
	m.MountCalls = append(m.MountCalls, MountCall{
		DevicePath: devicePath,
		MountPoint: mountPoint,
		Fstype:     fstype,
		Options:    mountOptions,
	})
	return m.MountFilesystemErrs[mountPoint]
}

func (m *FakeMounter) Unmount(mountPoint string) (bool, error) {
	m.UnmountPaths = append(m.UnmountPaths, mountPoint)
	if err := m.UnmountErrs[mountPoint]; err != nil {
		return false, err
	}
	return m.UnmountDid, nil
}

func (m *FakeMounter) IsMounted(path string) (bool, error) {
	return m.IsMountedResults[path], m.IsMountedErr
}
