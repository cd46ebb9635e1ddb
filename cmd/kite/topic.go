package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kitemesh/kite/pkg/message"
	"github.com/kitemesh/kite/pkg/node"
)

func newTopicCmd() *cobra.Command {
	topicCmd := &cobra.Command{
		Use:   "topic",
		Short: "Inspect and sample topics",
	}

	listCmd := &cobra.Command{
		Use:   "list [filter]",
		Short: "List known topics",
		Args:  cobra.RangeArgs(0, 1),
		Run:   runTopicList,
	}

	infoCmd := &cobra.Command{
		Use:   "info <topic>",
		Short: "Show a topic's publishers and subscribers",
		Args:  cobra.ExactArgs(1),
		Run:   runTopicInfo,
	}

	echoCmd := &cobra.Command{
		Use:   "echo <topic>",
		Short: "Print messages arriving on a topic",
		Args:  cobra.ExactArgs(1),
		Run:   runTopicEcho,
	}

	hzCmd := &cobra.Command{
		Use:   "hz <topic>",
		Short: "Measure a topic's message rate",
		Args:  cobra.ExactArgs(1),
		Run:   runTopicHz,
	}
	hzCmd.Flags().Duration("window", 5*time.Second, "Sliding window for the rate estimate")

	topicCmd.AddCommand(listCmd, infoCmd, echoCmd, hzCmd)
	return topicCmd
}

func runTopicList(cmd *cobra.Command, args []string) {
	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}

	topics, err := newClient(cmd).GetTopics(context.Background(), filter)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return
	}
	renderTable(cmd.OutOrStdout(), []string{"Topic", "Type"}, topicRows(topics))
}

func runTopicInfo(cmd *cobra.Command, args []string) {
	info, err := newClient(cmd).GetTopicInfo(context.Background(), args[0])
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Topic: %s\nType: %s\n\n", info.TopicName, info.MsgType)

	fmt.Fprintln(out, "Publishers:")
	rows := make([][]string, 0, len(info.Publishers))
	for _, n := range info.Publishers {
		rows = append(rows, []string{n.Name, n.IP, strconv.Itoa(n.Port)})
	}
	renderTable(out, []string{"Name", "IP", "Port"}, rows)

	fmt.Fprintln(out, "Subscribers:")
	rows = rows[:0]
	for _, n := range info.Subscribers {
		rows = append(rows, []string{n.Name, n.IP, strconv.Itoa(n.Port)})
	}
	renderTable(out, []string{"Name", "IP", "Port"}, rows)
}

// sampleTopic spins up a throwaway node subscribed to the topic and
// hands every message to fn until interrupted.
func sampleTopic(cmd *cobra.Command, topic string, fn func(message.Codec)) error {
	coordAddr, _ := cmd.Flags().GetString("coordinator")

	client := newClient(cmd)
	info, err := client.GetTopicInfo(context.Background(), topic)
	if err != nil {
		return err
	}

	n, err := node.New(node.Config{
		Name:            "kite_cli_" + uuid.NewString()[:8],
		CoordinatorAddr: coordAddr,
	})
	if err != nil {
		return err
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := n.SubscribeType(ctx, topic, 100, info.MsgType, fn)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe(context.Background())

	n.Spin(ctx)
	return nil
}

func runTopicEcho(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	err := sampleTopic(cmd, args[0], func(m message.Codec) {
		data, err := m.Marshal()
		if err != nil {
			return
		}
		var pretty json.RawMessage = data
		encoded, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			encoded = data
		}
		fmt.Fprintf(out, "[%s] %s\n", m.TypeName(), encoded)
	})
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
}

func runTopicHz(cmd *cobra.Command, args []string) {
	window, _ := cmd.Flags().GetDuration("window")
	out := cmd.OutOrStdout()

	var (
		mu       sync.Mutex
		arrivals []time.Time
		ticker   = time.NewTicker(time.Second)
	)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			now := time.Now()
			mu.Lock()
			kept := arrivals[:0]
			for _, ts := range arrivals {
				if now.Sub(ts) <= window {
					kept = append(kept, ts)
				}
			}
			arrivals = kept
			count := len(arrivals)
			mu.Unlock()

			rate := float64(count) / window.Seconds()
			fmt.Fprintf(out, "rate: %.2f msg/s (window %s, samples %d)\n", rate, window, count)
		}
	}()

	err := sampleTopic(cmd, args[0], func(message.Codec) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
	})
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
}
