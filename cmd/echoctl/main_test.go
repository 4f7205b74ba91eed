package main

import (
	"strings"
	"testing"

	"github.com/mikey-austin/echo_remote/internal/core"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	want := []string{"ls", "status", "watch", "play", "pause", "toggle", "seek", "next", "prev", "shuffle", "repeat", "volume", "like", "queue"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("missing command %s: %v", name, err)
		}
	}
	for _, sub := range []string{"show", "jump", "rm", "mv", "clear"} {
		cmd, _, err := root.Find([]string{"queue", sub})
		if err != nil || cmd.Name() != sub {
			t.Fatalf("missing queue %s: %v", sub, err)
		}
	}
	for _, flag := range []string{"timeout", "json", "quiet", "verbose", "discovery-window", "name", "device-id"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("missing flag --%s", flag)
		}
	}
}

func TestSplitValueArgs(t *testing.T) {
	cases := []struct {
		args     []string
		selector string
		value    string
	}{
		{nil, "", ""},
		{[]string{"40"}, "", "40"},
		{[]string{"kitchen", "40"}, "kitchen", "40"},
	}
	for _, tc := range cases {
		sel, val := splitValueArgs(tc.args)
		if sel != tc.selector || val != tc.value {
			t.Fatalf("splitValueArgs(%v) = %q %q", tc.args, sel, val)
		}
	}
	if selectorArg([]string{"den"}) != "den" || selectorArg(nil) != "" {
		t.Fatalf("unexpected selectorArg")
	}
}

func TestParseIndex(t *testing.T) {
	if got, err := parseIndex("3"); err != nil || got != 3 {
		t.Fatalf("parseIndex: %d %v", got, err)
	}
	for _, bad := range []string{"-1", "x", ""} {
		if _, err := parseIndex(bad); core.ExitCode(err) != core.ExitUsage {
			t.Fatalf("expected usage error for %q, got %v", bad, err)
		}
	}
}

func TestFixedIgnoresState(t *testing.T) {
	msg, err := fixed(remote.Next{})(remote.PlayerState{IsPlaying: true})
	if err != nil || msg != (remote.Next{}) {
		t.Fatalf("unexpected %#v %v", msg, err)
	}
}

func TestDefaultNamePrecedence(t *testing.T) {
	if defaultName("flag", "cfg") != "flag" || defaultName("", "cfg") != "cfg" {
		t.Fatalf("unexpected precedence")
	}
	if strings.TrimSpace(defaultName("", "")) == "" {
		t.Fatalf("expected a fallback name")
	}
}

func TestControllerIDOverride(t *testing.T) {
	id, err := controllerID("", "from-config")
	if err != nil || id != "from-config" {
		t.Fatalf("unexpected id %q %v", id, err)
	}
	id, err = controllerID("from-flag", "from-config")
	if err != nil || id != "from-flag" {
		t.Fatalf("unexpected id %q %v", id, err)
	}
}
