package app

import (
	"encoding/json"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshsys "github.com/cloudfoundry/bosh-utils/system"
)

// Config carries optional host-specific overrides. All fields default to
// sensible values when the file (or a field) is absent.
type Config struct {
	MountParentDir string // parent directory for scratch mount points
	QemuPath       string // user-mode emulator copied into foreign-arch targets
	ShellPath      string // shell used inside the chroot
}

func LoadConfigFromPath(fs boshsys.FileSystem, path string) (Config, error) {
	var config Config

	if path == "" {
		return config, nil
	}

	bytes, err := fs.ReadFile(path)
	if err != nil {
		return config, bosherr.WrapError(err, "Reading config file")
	}

	err = json.Unmarshal(bytes, &config)
	if err != nil {
		return config, bosherr.WrapError(err, "Parsing config file")
	}

	return config, nil
}
