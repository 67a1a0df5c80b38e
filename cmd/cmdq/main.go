// Command cmdq is a background job queue for shell commands.
package main

import (
	"context"
	"os"

	"github.com/xraph/cmdq/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
