package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vjelic/rocm-jax-glog-fork/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
