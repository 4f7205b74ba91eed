package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/echo_remote/internal/core"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	w := writerOr(p.Out)
	switch data := v.(type) {
	case core.DevicesResult:
		return printDevices(w, data)
	case core.StatusResult:
		return printStatus(w, data)
	case core.QueueResult:
		return printQueue(w, data)
	default:
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
}

func printDevices(w io.Writer, result core.DevicesResult) error {
	if len(result.Devices) == 0 {
		_, err := fmt.Fprintln(w, "no players found")
		return err
	}
	data := pterm.TableData{{"NAME", "ADDRESS", "DEVICE_ID"}}
	for _, d := range result.Devices {
		data = append(data, []string{d.Name, fmt.Sprintf("%s:%d", d.Address, d.Port), d.DeviceID})
	}
	return renderTable(w, data)
}

func printStatus(w io.Writer, result core.StatusResult) error {
	state := result.State
	status := "paused"
	switch {
	case state.IsBuffering:
		status = "buffering"
	case state.IsPlaying:
		status = "playing"
	}
	item := "(nothing queued)"
	if state.CurrentTrack != nil {
		item = formatTrack(*state.CurrentTrack)
	}

	line := strings.TrimSpace(fmt.Sprintf("%s  [%s]  %s  %s", result.Player.Name, status, item, formatPosition(state.Position, state.Duration)))
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}

	flags := []string{fmt.Sprintf("repeat %s", state.RepeatMode)}
	if state.ShuffleMode {
		flags = append(flags, "shuffle")
	}
	if state.IsLiked {
		flags = append(flags, "liked")
	}
	if state.ExtensionID != nil && *state.ExtensionID != "" {
		flags = append(flags, "via "+*state.ExtensionID)
	}
	_, err := fmt.Fprintf(w, "Queue: %d tracks (index %d)  %s\n", len(state.Queue), state.CurrentIndex, strings.Join(flags, "  "))
	return err
}

func printQueue(w io.Writer, result core.QueueResult) error {
	if len(result.Queue) == 0 {
		_, err := fmt.Fprintln(w, "(empty queue)")
		return err
	}
	data := pterm.TableData{{"", "INDEX", "TITLE", "ARTIST", "ALBUM", "LEN", "ID"}}
	for idx, track := range result.Queue {
		marker := ""
		if idx == result.CurrentIndex {
			marker = ">"
		}
		length := ""
		if track.DurationMS != nil {
			length = formatMS(*track.DurationMS)
		}
		data = append(data, []string{marker, strconv.Itoa(idx), track.Title, strings.Join(track.Artists, ", "), track.Album, length, track.ID})
	}
	return renderTable(w, data)
}

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func formatTrack(track remote.Track) string {
	title := track.Title
	if title == "" {
		title = track.ID
	}
	if len(track.Artists) > 0 {
		return fmt.Sprintf("%s - %s", strings.Join(track.Artists, ", "), title)
	}
	return title
}

func formatPosition(pos, dur int64) string {
	if pos == 0 && dur == 0 {
		return ""
	}
	if dur > 0 {
		return fmt.Sprintf("%s / %s (%d%%)", formatMS(pos), formatMS(dur), (pos*100)/dur)
	}
	return fmt.Sprintf("%s / %s", formatMS(pos), formatMS(dur))
}

func formatMS(ms int64) string {
	if ms <= 0 {
		return "0:00"
	}
	secs := ms / 1000
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
