package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

const defaultSettle = 750 * time.Millisecond

// ErrPlayerGone is returned when the player ends the session.
var ErrPlayerGone = errors.New("player disconnected")

// Service orchestrates controller CLI use cases.
type Service struct {
	Finder    ports.DeviceFinder
	Connector ports.Connector
	Config    Config
	Log       *zap.Logger
}

// CommandFunc builds the command to send from the player's current state.
type CommandFunc func(state remote.PlayerState) (remote.Message, error)

type session struct {
	device remote.DeviceRecord
	remote ports.RemoteSession
	mirror Mirror
}

func (s Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// ListDevices returns the players visible on the network.
func (s Service) ListDevices(ctx context.Context) (DevicesResult, error) {
	if s.Finder == nil {
		return DevicesResult{}, &CLIError{Code: ExitRuntime, Msg: "discovery unavailable"}
	}
	devices, err := s.Finder.FindDevices(ctx)
	if err != nil {
		return DevicesResult{}, WrapError(ExitRuntime, "discover players", err)
	}
	return DevicesResult{Devices: devices}, nil
}

// Status connects, reads the initial snapshot and disconnects.
func (s Service) Status(ctx context.Context, selector string) (StatusResult, error) {
	sess, err := s.open(ctx, selector)
	if err != nil {
		return StatusResult{}, err
	}
	defer sess.remote.Close()
	return sess.result(), nil
}

// Queue returns the player's queue.
func (s Service) Queue(ctx context.Context, selector string) (QueueResult, error) {
	status, err := s.Status(ctx, selector)
	if err != nil {
		return QueueResult{}, err
	}
	return QueueResult{Player: status.Player, Queue: status.State.Queue, CurrentIndex: status.State.CurrentIndex}, nil
}

// Watch streams the mirrored state to fn until ctx ends or the player goes
// away.
func (s Service) Watch(ctx context.Context, selector string, fn func(StatusResult) error) error {
	sess, err := s.open(ctx, selector)
	if err != nil {
		return err
	}
	defer sess.remote.Close()
	if err := fn(sess.result()); err != nil {
		return err
	}

	for {
		changes := sess.remote.StateChanges()
		switch state := sess.remote.State(); {
		case state == remote.StateConnected:
		case state == remote.StateError || !sess.remote.Active():
			return WrapError(ExitRuntime, sess.device.Name, ErrPlayerGone)
		default:
			s.logger().Debug("waiting for player to come back", zap.String("player", sess.device.Name), zap.Stringer("state", state))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
		case msg := <-sess.remote.Messages():
			if sess.mirror.Apply(msg) {
				if err := fn(sess.result()); err != nil {
					return err
				}
			} else if e, ok := msg.(remote.Error); ok {
				s.logger().Warn("player reported error", zap.String("code", string(e.Code)), zap.String("message", e.Message))
			}
		}
	}
}

// Command sends the message built by build and waits briefly for the
// player's reply. An Error reply becomes the returned error.
func (s Service) Command(ctx context.Context, selector string, build CommandFunc) (StatusResult, error) {
	sess, err := s.open(ctx, selector)
	if err != nil {
		return StatusResult{}, err
	}
	defer sess.remote.Close()

	state, _ := sess.mirror.State()
	msg, err := build(state)
	if err != nil {
		return StatusResult{}, err
	}
	if err := sess.remote.Send(msg); err != nil {
		return StatusResult{}, WrapError(ExitRuntime, fmt.Sprintf("send %s", msg.Type()), err)
	}
	s.logger().Debug("sent command", zap.String("type", string(msg.Type())), zap.String("player", sess.device.Name))

	settle := s.Config.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return sess.result(), nil
		case <-timer.C:
			return sess.result(), nil
		case reply := <-sess.remote.Messages():
			if e, ok := reply.(remote.Error); ok {
				sess.mirror.Apply(reply)
				return sess.result(), ErrorForRemote(e)
			}
			sess.mirror.Apply(reply)
			if _, ok := reply.(remote.PlayerState); ok {
				return sess.result(), nil
			}
		}
	}
}

// Send is Command for a message that does not depend on state.
func (s Service) Send(ctx context.Context, selector string, msg remote.Message) (StatusResult, error) {
	return s.Command(ctx, selector, func(remote.PlayerState) (remote.Message, error) {
		return msg, nil
	})
}

func (s Service) open(ctx context.Context, selector string) (*session, error) {
	if s.Connector == nil {
		return nil, &CLIError{Code: ExitRuntime, Msg: "no connector configured"}
	}
	device, err := Resolver{Finder: s.Finder, Config: s.Config}.ResolvePlayer(ctx, selector)
	if err != nil {
		return nil, err
	}

	rs, err := s.Connector.Connect(ctx, device)
	if err != nil {
		return nil, ErrorForConnect(device, err)
	}
	sess := &session{device: device, remote: rs}
	if err := sess.waitState(ctx); err != nil {
		rs.Close()
		return nil, err
	}
	return sess, nil
}

// waitState blocks until the player's first PlayerState arrives.
func (sess *session) waitState(ctx context.Context) error {
	for {
		if _, ok := sess.mirror.State(); ok {
			return nil
		}
		changes := sess.remote.StateChanges()
		if sess.remote.State() != remote.StateConnected {
			return WrapError(ExitRuntime, sess.device.Name, ErrPlayerGone)
		}
		select {
		case <-ctx.Done():
			return WrapError(ExitRuntime, fmt.Sprintf("waiting for state from %s", sess.device.Name), ctx.Err())
		case <-changes:
		case msg := <-sess.remote.Messages():
			sess.mirror.Apply(msg)
			if e, ok := msg.(remote.Error); ok {
				return ErrorForRemote(e)
			}
		}
	}
}

func (sess *session) result() StatusResult {
	state, _ := sess.mirror.State()
	return StatusResult{Player: sess.device, State: state}
}
