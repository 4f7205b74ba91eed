package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/echo_remote/internal/core"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

func playCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "play [player]",
		Short: "Start playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fromContext(cmd).run(selectorArg(args), core.PlayPause(true))
		},
	}
}

func pauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [player]",
		Short: "Pause playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fromContext(cmd).run(selectorArg(args), core.PlayPause(false))
		},
	}
}

func toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [player]",
		Short: "Toggle playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fromContext(cmd).run(selectorArg(args), core.TogglePlayback)
		},
	}
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek [player] <position|+/-offset>",
		Short: "Seek playback",
		Long:  "Seek to an absolute position (90, 1:30, 1m30s) or by a relative offset (+10, -0:15).",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, value := splitValueArgs(args)
			msg, err := core.ParseSeek(value)
			if err != nil {
				return err
			}
			return fromContext(cmd).run(selector, fixed(msg))
		},
	}
}

func nextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next [player]",
		Short: "Next track",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fromContext(cmd).run(selectorArg(args), fixed(remote.Next{}))
		},
	}
}

func prevCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prev [player]",
		Short: "Previous track, or restart the current one",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fromContext(cmd).run(selectorArg(args), fixed(remote.Previous{}))
		},
	}
}

func shuffleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shuffle [player] [on|off|toggle]",
		Short: "Set shuffle mode",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, value := splitValueArgs(args)
			return fromContext(cmd).run(selector, core.Shuffle(value))
		},
	}
}

func repeatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repeat [player] [off|one|all]",
		Short: "Set repeat mode, cycling when no mode is given",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, value := splitValueArgs(args)
			return fromContext(cmd).run(selector, core.Repeat(value))
		},
	}
}

func volumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "volume [player] <0-100>",
		Short: "Set output volume",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, value := splitValueArgs(args)
			msg, err := core.ParseVolume(value)
			if err != nil {
				return err
			}
			return fromContext(cmd).run(selector, fixed(msg))
		},
	}
}

func likeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "like [player] [on|off|toggle]",
		Short: "Like or unlike the current track",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, value := splitValueArgs(args)
			return fromContext(cmd).run(selector, core.Like(value))
		},
	}
}

func fixed(msg remote.Message) core.CommandFunc {
	return func(remote.PlayerState) (remote.Message, error) {
		return msg, nil
	}
}
