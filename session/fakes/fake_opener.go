package fakes

import (
	"github.com/copterspace/img-tool/session"
)

type FakeOpener struct {
	OpenImagePaths []string
	OpenArgs       [][]string
	OpenWorks      []session.Work

	// OpenMountPoint, when set, runs the supplied work against it instead of
	// returning the canned result.
	OpenMountPoint string
	OpenExitCode   int
	OpenErr        error
}

func (o *FakeOpener) Open(imagePath string, work session.Work, args []string) (int, error) {
	o.OpenImagePaths = append(o.OpenImagePaths, imagePath)
	o.OpenArgs = append(o.OpenArgs, args)
	o.OpenWorks = append(o.OpenWorks, work)

	if o.OpenMountPoint != "" && work != nil {
		return work(o.OpenMountPoint, args)
	}
	return o.OpenExitCode, o.OpenErr
}
