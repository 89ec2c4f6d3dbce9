package fakes

import (
	"github.com/copterspace/img-tool/session"
)

type FakePartUUIDFixer struct {
	WorkImagePaths []string
	WorkOldIDs     []string
	WorkFunc       session.Work
}

func (f *FakePartUUIDFixer) Work(imagePath, oldID string) session.Work {
	f.WorkImagePaths = append(f.WorkImagePaths, imagePath)
	f.WorkOldIDs = append(f.WorkOldIDs, oldID)

	if f.WorkFunc != nil {
		return f.WorkFunc
	}
	return func(string, []string) (int, error) { return 0, nil }
}
