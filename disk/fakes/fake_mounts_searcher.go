package fakes

type FakeMountsSearcher struct {
	IsMountedResults map[string]bool
	IsMountedErr     error
	IsMountedPaths   []string
}

func NewFakeMountsSearcher() *FakeMountsSearcher {
	return &FakeMountsSearcher{IsMountedResults: map[string]bool{}}
}

func (s *FakeMountsSearcher) IsMounted(path string) (bool, error) {
	s.IsMountedPaths = append(s.IsMountedPaths, path)
	return s.IsMountedResults[path], s.IsMountedErr
}
