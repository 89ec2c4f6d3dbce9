package main

import (
	"fmt"
	"os"

	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	boshsys "github.com/cloudfoundry/bosh-utils/system"

	imgapp "github.com/copterspace/img-tool/app"
	imgerr "github.com/copterspace/img-tool/errors"
)

func main() {
	logLevel := boshlog.LevelError
	if os.Getenv("IMG_TOOL_DEBUG") != "" {
		logLevel = boshlog.LevelDebug
	}

	logger := boshlog.NewLogger(logLevel)
	defer logger.HandlePanic("Main")

	fs := boshsys.NewOsFileSystem(logger)
	cmdRunner := boshsys.NewExecCmdRunner(logger)

	app := imgapp.New(logger, fs, cmdRunner)

	if err := app.Setup(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if imgerr.IsValidation(err) {
			fmt.Fprintln(os.Stderr, imgapp.Usage)
		}
		os.Exit(1)
	}

	exitCode, err := app.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
