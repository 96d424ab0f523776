package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vjelic/rocm-jax-glog-fork/discover"
)

func NewDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Detect accelerators and print the device mask a run would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := discover.DeviceCount(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("%d GPUs detected.\n", count)
			fmt.Printf("HIP_VISIBLE_DEVICES=%s\n", discover.MaskForCount(count))
			return nil
		},
	}
}
