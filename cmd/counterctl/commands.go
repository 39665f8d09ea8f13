package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/counterctl/internal/instruction"
	"github.com/danmuck/counterctl/internal/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	addr    string
	dir     string
	timeout time.Duration
	policy  string
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{logger: zerolog.Nop()})
}

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "counterctl",
		Short:         "counterctl applies counter instructions to slots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = observability.InitLogger("counterctl")
		},
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "127.0.0.1:7400", "counterd framed transport address")
	root.PersistentFlags().StringVar(&opts.dir, "dir", "", "operate directly on a local file store instead of counterd")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&opts.policy, "overflow", "wrap", "overflow policy for --dir mode: wrap|strict")

	for _, name := range []string{"increment", "decrement", "set"} {
		root.AddCommand(newOpCmd(opts, name))
	}
	root.AddCommand(newResetCmd(opts), newGetCmd(opts), newRawCmd(opts))
	return root
}

func newOpCmd(opts *options, name string) *cobra.Command {
	tag, _ := instruction.ParseTag(name)
	cmd := &cobra.Command{
		Use:   name + " <slot> <amount>",
		Short: fmt.Sprintf("apply %s to a slot", tag),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := instruction.Parse(name, args[1])
			if err != nil {
				return err
			}
			return invoke(cmd, opts, args[0], instruction.Encode(op))
		},
	}
	switch name {
	case "increment":
		cmd.Aliases = []string{"inc"}
	case "decrement":
		cmd.Aliases = []string{"dec"}
	case "set":
		cmd.Aliases = []string{"update"}
	}
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <slot>",
		Short: "reset a slot to zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, opts, args[0], instruction.Encode(instruction.ResetToZero()))
		},
	}
}

func newRawCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "raw <slot> <hex>",
		Short: "send hex encoded instruction bytes unchanged",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			instr, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(args[1]), "0x"))
			if err != nil {
				return fmt.Errorf("decode hex instruction: %w", err)
			}
			return invoke(cmd, opts, args[0], instr)
		},
	}
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <slot>",
		Short: "print the counter stored in a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmdContext(cmd), opts.timeout)
			defer cancel()
			b, err := openBackend(ctx, opts)
			if err != nil {
				return err
			}
			defer b.Close()
			value, err := b.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", args[0], value)
			return nil
		},
	}
}

func invoke(cmd *cobra.Command, opts *options, slotID string, instr []byte) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), opts.timeout)
	defer cancel()
	b, err := openBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer b.Close()
	res, err := b.Invoke(ctx, slotID, instr)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.String())
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
