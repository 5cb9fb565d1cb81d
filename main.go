package main

import (
	"os"

	"github.com/tanelvakker/qwtimers/cmd"
	"github.com/tanelvakker/qwtimers/internal/errors"
)

func main() {
	os.Exit(errors.GetExitCode(cmd.Execute()))
}
