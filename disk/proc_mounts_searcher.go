package disk

import (
	"os"

	"github.com/moby/sys/mountinfo"
)

type procMountsSearcher struct{}

// NewProcMountsSearcher reads mount state from /proc/self/mountinfo, the most
// reliable source of mount information.
func NewProcMountsSearcher() MountsSearcher {
	return procMountsSearcher{}
}

func (procMountsSearcher) IsMounted(path string) (bool, error) {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return mounted, nil
}
