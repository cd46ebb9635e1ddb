package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kitemesh/kite/pkg/types"
)

func newNodeCmd() *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect registered nodes",
	}

	listCmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "List registered nodes",
		Args:  cobra.RangeArgs(0, 1),
		Run:   runNodeList,
	}

	infoCmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show one node's publications and subscriptions",
		Args:  cobra.ExactArgs(1),
		Run:   runNodeInfo,
	}

	nodeCmd.AddCommand(listCmd, infoCmd)
	return nodeCmd
}

func runNodeList(cmd *cobra.Command, args []string) {
	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}

	nodes, err := newClient(cmd).GetNodes(context.Background(), filter)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return
	}

	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{n.Name, n.IP, strconv.Itoa(n.Port)})
	}
	renderTable(cmd.OutOrStdout(), []string{"Name", "IP", "Port"}, rows)
}

func runNodeInfo(cmd *cobra.Command, args []string) {
	info, err := newClient(cmd).GetNodeInfo(context.Background(), args[0])
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Node: %s (%s)\n\n", info.Node.Name, info.Node.Addr())

	fmt.Fprintln(out, "Publishes:")
	renderTable(out, []string{"Topic", "Type"}, topicRows(info.Publishes))
	fmt.Fprintln(out, "Subscribes:")
	renderTable(out, []string{"Topic", "Type"}, topicRows(info.Subscribes))
}

func topicRows(topics []types.TopicInfo) [][]string {
	rows := make([][]string, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, []string{t.TopicName, t.MsgType})
	}
	return rows
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(w)
}
