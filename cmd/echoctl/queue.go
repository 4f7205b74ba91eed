package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/echo_remote/internal/core"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

func queueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue commands",
	}

	cmd.AddCommand(queueShowCommand())
	cmd.AddCommand(queueJumpCommand())
	cmd.AddCommand(queueRemoveCommand())
	cmd.AddCommand(queueMoveCommand())
	cmd.AddCommand(queueClearCommand())

	return cmd
}

func queueShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "show [player]",
		Aliases: []string{"list", "ls"},
		Short:   "List queue entries",
		Args:    cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Queue(ctx, selectorArg(args))
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func queueJumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jump [player] <index>",
		Short: "Play the queue entry at index",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, value := splitValueArgs(args)
			index, err := parseIndex(value)
			if err != nil {
				return err
			}
			return fromContext(cmd).run(selector, core.QueueJump(index))
		},
	}
}

func queueRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [player] <index>",
		Aliases: []string{"remove"},
		Short:   "Remove the queue entry at index",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, value := splitValueArgs(args)
			index, err := parseIndex(value)
			if err != nil {
				return err
			}
			return fromContext(cmd).run(selector, core.QueueRemove(index))
		},
	}
}

func queueMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "mv [player] <from> <to>",
		Aliases: []string{"move"},
		Short:   "Move a queue entry",
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector := ""
			if len(args) == 3 {
				selector = args[0]
				args = args[1:]
			}
			from, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			to, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return fromContext(cmd).run(selector, core.QueueMove(from, to))
		},
	}
}

func queueClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [player]",
		Short: "Clear the queue and stop playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fromContext(cmd).run(selectorArg(args), fixed(remote.ClearQueue{}))
		},
	}
}

func parseIndex(arg string) (int, error) {
	index, err := strconv.Atoi(arg)
	if err != nil || index < 0 {
		return 0, core.UsageError("index must be a non-negative integer, got %q", arg)
	}
	return index, nil
}
