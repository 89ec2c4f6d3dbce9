package app

import (
	"strconv"
	"strings"

	imgerr "github.com/copterspace/img-tool/errors"
)

const Usage = `Usage: img-tool <imagePath> <command> [args...]

Commands:
  exec [script [args...]]   run a script (or an interactive shell) chrooted
                            into the mounted image
  copy <src> <dst>          copy a host path into the mounted image
  size [newSize]            report image geometry, or resize the image;
                            newSize takes an optional K/M/G suffix
  load <url>                download a distribution image (.zip/.xz/.img)
                            onto imagePath`

type Options struct {
	ImagePath string
	Command   string
	Args      []string
}

// ParseOptions validates the positional command line, argv[0] included.
func ParseOptions(args []string) (Options, error) {
	var opts Options

	if len(args) < 3 {
		return opts, imgerr.NewValidationError("image path and command are required")
	}

	opts.ImagePath = args[1]
	opts.Command = args[2]
	opts.Args = args[3:]

	switch opts.Command {
	case "exec":
		// script and its arguments are optional
	case "copy":
		if len(opts.Args) != 2 {
			return opts, imgerr.NewValidationError("copy requires <src> and <dst>")
		}
	case "size":
		if len(opts.Args) > 1 {
			return opts, imgerr.NewValidationError("size takes at most one argument")
		}
	case "load":
		if len(opts.Args) != 1 {
			return opts, imgerr.NewValidationError("load requires <url>")
		}
	default:
		return opts, imgerr.NewValidationErrorf("unknown command '%s'", opts.Command)
	}

	return opts, nil
}

// ParseSize reads a byte count with an optional K/M/G suffix (1024-based).
func ParseSize(arg string) (uint64, error) {
	multiplier := uint64(1)
	number := arg

	switch {
	case strings.HasSuffix(strings.ToUpper(arg), "K"):
		multiplier, number = 1024, arg[:len(arg)-1]
	case strings.HasSuffix(strings.ToUpper(arg), "M"):
		multiplier, number = 1024*1024, arg[:len(arg)-1]
	case strings.HasSuffix(strings.ToUpper(arg), "G"):
		multiplier, number = 1024*1024*1024, arg[:len(arg)-1]
	}

	size, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		return 0, imgerr.NewValidationErrorf("size '%s' is not a valid byte count", arg)
	}

	return size * multiplier, nil
}
