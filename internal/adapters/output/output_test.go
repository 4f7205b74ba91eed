package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/echo_remote/internal/core"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

func init() {
	pterm.DisableStyling()
}

func TestFormatMS(t *testing.T) {
	cases := map[int64]string{
		-5:      "0:00",
		0:       "0:00",
		61000:   "1:01",
		3723000: "1:02:03",
	}
	for in, want := range cases {
		if got := formatMS(in); got != want {
			t.Fatalf("formatMS(%d) = %q, want %q", in, got, want)
		}
	}
	if got := formatPosition(30000, 120000); got != "0:30 / 2:00 (25%)" {
		t.Fatalf("unexpected position %q", got)
	}
}

func TestHumanStatus(t *testing.T) {
	var buf bytes.Buffer
	ext := "local"
	track := remote.Track{ID: "t1", Title: "Blue", Artists: []string{"Joni"}}
	err := HumanPrinter{Out: &buf}.Print(core.StatusResult{
		Player: remote.DeviceRecord{Name: "Kitchen"},
		State: remote.PlayerState{
			CurrentTrack: &track,
			ExtensionID:  &ext,
			IsPlaying:    true,
			Position:     1000,
			Duration:     4000,
			RepeatMode:   remote.RepeatAll,
			ShuffleMode:  true,
			Queue:        []remote.Track{track},
		},
	})
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Kitchen", "[playing]", "Joni - Blue", "(25%)", "repeat all", "shuffle", "via local"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestHumanQueueAndDevices(t *testing.T) {
	var buf bytes.Buffer
	dur := int64(90000)
	printer := HumanPrinter{Out: &buf}
	err := printer.Print(core.QueueResult{
		Queue:        []remote.Track{{ID: "a", Title: "One", DurationMS: &dur}, {ID: "b", Title: "Two"}},
		CurrentIndex: 1,
	})
	if err != nil {
		t.Fatalf("print queue: %v", err)
	}
	if !strings.Contains(buf.String(), "1:30") || !strings.Contains(buf.String(), "Two") {
		t.Fatalf("unexpected queue output %q", buf.String())
	}

	buf.Reset()
	if err := printer.Print(core.DevicesResult{}); err != nil {
		t.Fatalf("print devices: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "no players found" {
		t.Fatalf("unexpected devices output %q", buf.String())
	}

	buf.Reset()
	if err := printer.Print(core.DevicesResult{Devices: []remote.DeviceRecord{{Name: "Den", Address: "10.0.0.2", Port: 8765, DeviceID: "d"}}}); err != nil {
		t.Fatalf("print devices: %v", err)
	}
	if !strings.Contains(buf.String(), "10.0.0.2:8765") {
		t.Fatalf("unexpected devices output %q", buf.String())
	}
}

func TestJSONPrinter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONPrinter{Out: &buf}).Print(core.DevicesResult{Devices: []remote.DeviceRecord{{Name: "Den"}}}); err != nil {
		t.Fatalf("print: %v", err)
	}
	var decoded core.DevicesResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Devices) != 1 || decoded.Devices[0].Name != "Den" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}
