package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/macropower/checkit/internal/cli"
	"github.com/macropower/checkit/pkg/version"
)

func main() {
	cmd := cli.NewRootCmd()

	err := fang.Execute(context.Background(), cmd,
		fang.WithVersion(version.GetVersion()),
		fang.WithErrorHandler(cli.ErrorHandler),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err != nil {
		os.Exit(1)
	}
}
