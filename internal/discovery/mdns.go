// Package discovery advertises the controller's web interface over mDNS.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// ServiceType is the advertised service type.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultInstance is the default instance name; clients reach the
	// controller as motorhome.local.
	DefaultInstance = "motorhome"
)

// registration is what Advertise needs back from the mDNS responder.
type registration interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (registration, error)

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (registration, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Advertiser publishes one service instance until Shutdown.
type Advertiser struct {
	register registerFunc
	logger   *zap.Logger
	server   registration
}

// NewAdvertiser creates an Advertiser using the system mDNS responder.
func NewAdvertiser(logger *zap.Logger) *Advertiser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advertiser{register: zeroconfRegister, logger: logger}
}

// Advertise announces instance as an HTTP service on the port of addr
// (for example ":80").
func (a *Advertiser) Advertise(instance, addr string, text []string) error {
	if a.server != nil {
		return fmt.Errorf("already advertising")
	}
	if instance == "" {
		instance = DefaultInstance
	}
	port, err := PortFromAddr(addr)
	if err != nil {
		return err
	}
	srv, err := a.register(instance, ServiceType, ServiceDomain, port, text, nil)
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}
	a.server = srv
	a.logger.Info("mdns service registered",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return nil
}

// Shutdown withdraws the advertisement. Safe to call when not advertising.
func (a *Advertiser) Shutdown() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.logger.Info("mdns service withdrawn")
}

// PortFromAddr extracts the TCP port from a listen address. An address
// without a port means 80.
func PortFromAddr(addr string) (int, error) {
	if addr == "" {
		return 80, nil
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	if p == "" {
		return 80, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}
