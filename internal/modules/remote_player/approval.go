package remoteplayer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/echo_remote/internal/connection"
)

// Decision is the outcome of reviewing a pending connection.
type Decision struct {
	Accept bool
	Trust  bool
	Reason string
}

// Approver decides on pending connections from untrusted controllers.
type Approver interface {
	Review(ctx context.Context, pending connection.PendingConnection) (Decision, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, pending connection.PendingConnection) (Decision, error)

// Review calls f.
func (f ApproverFunc) Review(ctx context.Context, pending connection.PendingConnection) (Decision, error) {
	return f(ctx, pending)
}

// RejectAll declines every untrusted controller.
func RejectAll(reason string) Approver {
	return ApproverFunc(func(context.Context, connection.PendingConnection) (Decision, error) {
		return Decision{Reason: reason}, nil
	})
}

// AcceptAll admits every controller, optionally trusting it.
func AcceptAll(trust bool) Approver {
	return ApproverFunc(func(context.Context, connection.PendingConnection) (Decision, error) {
		return Decision{Accept: true, Trust: trust}, nil
	})
}

// Approval modes accepted by NewApprover.
const (
	ApprovalPrompt = "prompt"
	ApprovalReject = "reject"
	ApprovalAccept = "accept"
	ApprovalManual = "manual"
)

// NewApprover builds the approver for mode. Manual mode returns nil: pending
// connections wait for Module.Accept or Module.Reject.
func NewApprover(mode string) (Approver, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ApprovalPrompt:
		return &PromptApprover{}, nil
	case ApprovalReject:
		return RejectAll(""), nil
	case ApprovalAccept:
		return AcceptAll(false), nil
	case ApprovalManual:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown approval mode %q", mode)
	}
}

const (
	optionAcceptOnce  = "Accept once"
	optionAcceptTrust = "Accept and trust this device"
	optionReject      = "Reject"
)

// PromptApprover asks on the terminal. Prompts are shown one at a time.
type PromptApprover struct {
	mu sync.Mutex
}

// Review shows an interactive prompt for pending.
func (p *PromptApprover) Review(ctx context.Context, pending connection.PendingConnection) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	pterm.Info.Printfln("%s (%s) wants to control this player", pending.DeviceName, pending.DeviceID)
	if compat := pending.Compatibility; !compat.Compatible {
		pterm.Warning.Printfln("no shared extensions; missing here: %s", strings.Join(compat.MissingOnLocal, ", "))
	} else if len(compat.MissingOnLocal) > 0 {
		pterm.Warning.Printfln("extensions missing here: %s", strings.Join(compat.MissingOnLocal, ", "))
	}

	choice, err := pterm.DefaultInteractiveSelect.
		WithDefaultText("Allow connection?").
		WithOptions([]string{optionAcceptOnce, optionAcceptTrust, optionReject}).
		Show()
	if err != nil {
		return Decision{}, err
	}
	switch choice {
	case optionAcceptOnce:
		return Decision{Accept: true}, nil
	case optionAcceptTrust:
		return Decision{Accept: true, Trust: true}, nil
	default:
		return Decision{}, nil
	}
}
