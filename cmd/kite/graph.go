package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Dump the coordinator's message graph",
		Run:   runGraph,
	}
	graphCmd.Flags().Bool("dot", false, "Render as graphviz DOT")
	graphCmd.Flags().Bool("readable", false, "Render as a human-readable listing")
	return graphCmd
}

func runGraph(cmd *cobra.Command, _ []string) {
	addr, _ := cmd.Flags().GetString("coordinator")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	url := addr + "/graph"
	if dot, _ := cmd.Flags().GetBool("dot"); dot {
		url += "?format=dot"
	} else if readable, _ := cmd.Flags().GetBool("readable"); readable {
		url += "?format=readable"
	}

	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return
	}
	defer resp.Body.Close()

	if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	fmt.Fprintln(cmd.OutOrStdout())
}
