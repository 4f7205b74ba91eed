package discovery

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Browser streams Found/Lost/ResolveFailed events for a service type until
// ctx is cancelled.
type Browser interface {
	Browse(ctx context.Context, serviceType string, domain string, events chan<- Event) error
}

// Registration is a live advertisement.
type Registration interface {
	Name() string
	Shutdown()
}

// Advertiser publishes this device on the local network.
type Advertiser interface {
	Advertise(name string, serviceType string, domain string, port int, deviceID string) (Registration, error)
}

// Options configures the discovery service.
type Options struct {
	ServiceType string
	Domain      string
}

func (o Options) withDefaults() Options {
	if o.ServiceType == "" {
		o.ServiceType = remote.ServiceType
	}
	if o.Domain == "" {
		o.Domain = remote.ServiceDomain
	}
	return o
}

// Service advertises this player and browses for others.
type Service struct {
	log        *zap.Logger
	browser    Browser
	advertiser Advertiser
	opts       Options
	registry   *Registry

	mu           sync.Mutex
	registration Registration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewService creates a discovery service. Either collaborator may be nil
// when the process only advertises or only browses.
func NewService(log *zap.Logger, browser Browser, advertiser Advertiser, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:        log,
		browser:    browser,
		advertiser: advertiser,
		opts:       opts.withDefaults(),
		registry:   NewRegistry(),
	}
}

// Registry exposes the underlying device set.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Advertise registers this device. A second call while registered warns.
func (s *Service) Advertise(ctx context.Context, name string, port int, deviceID string) error {
	if s.advertiser == nil {
		return errors.New("no advertiser configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		name = remote.DefaultServiceNamePrefix
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registration != nil {
		s.log.Warn("service already registered", zap.String("name", s.registration.Name()))
		return nil
	}
	reg, err := s.advertiser.Advertise(name, s.opts.ServiceType, s.opts.Domain, port, deviceID)
	if err != nil {
		return err
	}
	s.registration = reg
	s.registry.SetSelf(reg.Name())
	s.log.Info("service registered",
		zap.String("name", reg.Name()),
		zap.String("type", s.opts.ServiceType),
		zap.Int("port", port),
	)
	return nil
}

// AdvertisedName returns the confirmed registration name, if any.
func (s *Service) AdvertisedName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registration == nil {
		return ""
	}
	return s.registration.Name()
}

// StopAdvertising withdraws the registration.
func (s *Service) StopAdvertising() {
	s.mu.Lock()
	reg := s.registration
	s.registration = nil
	s.mu.Unlock()
	if reg == nil {
		return
	}
	reg.Shutdown()
	s.log.Info("service unregistered", zap.String("name", reg.Name()))
}

// StartDiscovery begins browsing. Starting while active warns.
func (s *Service) StartDiscovery(ctx context.Context) error {
	if s.browser == nil {
		return errors.New("no browser configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.log.Warn("discovery already active")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	events := make(chan Event, 16)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer close(events)
		if err := s.browser.Browse(ctx, s.opts.ServiceType, s.opts.Domain, events); err != nil && ctx.Err() == nil {
			s.log.Error("discovery failed", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		for ev := range events {
			s.handle(ev)
		}
	}()
	s.log.Info("discovery started", zap.String("type", s.opts.ServiceType))
	return nil
}

func (s *Service) handle(ev Event) {
	switch ev.Kind {
	case Found:
		if s.registry.Apply(ev) {
			s.log.Info("device found",
				zap.String("name", ev.Record.Name),
				zap.String("address", ev.Record.Address),
				zap.Int("port", ev.Record.Port),
			)
		}
	case Lost:
		if s.registry.Apply(ev) {
			s.log.Info("device lost", zap.String("name", ev.Record.Name))
		}
	case ResolveFailed:
		s.log.Warn("resolve failed", zap.String("name", ev.Record.Name), zap.Error(ev.Err))
	}
}

// StopDiscovery stops browsing and clears the device set.
func (s *Service) StopDiscovery() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.registry.Clear()
	s.log.Info("discovery stopped")
}

// Devices returns a copy of the discovered devices.
func (s *Service) Devices() []remote.DeviceRecord {
	return s.registry.Devices()
}

// Watch streams device-list snapshots until the returned cancel is called.
func (s *Service) Watch() (<-chan []remote.DeviceRecord, func()) {
	return s.registry.Watch()
}

// Close stops browsing and advertising.
func (s *Service) Close() {
	s.StopDiscovery()
	s.StopAdvertising()
}
