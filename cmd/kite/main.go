package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/kitemesh/kite/pkg/rpc"
)

func main() {
	rootCmd := &cobra.Command{Use: "kite"}
	rootCmd.PersistentFlags().String("coordinator", rpc.DefaultAddr, "Coordinator RPC address")

	rootCmd.AddCommand(newNodeCmd(), newTopicCmd(), newGraphCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("failed to execute command: %q", err)
	}
}

func newClient(cmd *cobra.Command) *rpc.Client {
	addr, _ := cmd.Flags().GetString("coordinator")
	return rpc.NewClient(addr)
}
