// Package discovery announces the Chronarr API over mDNS so clients on
// the local network can find the server without manual configuration.
package discovery

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/mescon/chronarr/internal/logger"
)

const (
	// ServiceType is the DNS-SD service type Chronarr registers.
	ServiceType = "_chronarr._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// APIPath is the base path of the REST API, published in the TXT
	// records so clients know where to send requests.
	APIPath = "/api"

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second

	// maxInstanceNameLen is the DNS label limit.
	maxInstanceNameLen = 63
)

// Config configures the advertiser.
type Config struct {
	// Instance is the mDNS instance name. Empty means "chronarr-<hostname>".
	Instance string

	// Port is the port the REST API listens on.
	Port int

	// Version is the build version published in the TXT records.
	Version string

	// Interface restricts advertising to a single network interface.
	// Empty means all multicast-capable interfaces.
	Interface string

	// TTL is the DNS record TTL. Zero means DefaultTTL.
	TTL time.Duration
}

// Advertiser announces the REST API as a _chronarr._tcp service. The
// TXT records are fixed at registration time and never change while
// the server runs, so the lifecycle is just Start and Shutdown.
type Advertiser struct {
	config Config

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. Nothing is announced until
// Start is called.
func NewAdvertiser(config Config) *Advertiser {
	return &Advertiser{config: config}
}

// Start registers the service on the local network. Calling Start on
// an advertiser that is already running replaces the registration.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	if a.config.Port <= 0 || a.config.Port > 65535 {
		return fmt.Errorf("invalid mDNS advertisement port %d", a.config.Port)
	}

	ttl := a.config.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	instance := a.instanceName()
	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		a.config.Port,
		a.txtRecords(),
		a.interfaces(),
		zeroconf.TTL(uint32(ttl.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server
	logger.Infof("Advertising %s as %q on port %d", ServiceType, instance, a.config.Port)
	return nil
}

// Shutdown withdraws the advertisement. Safe to call when Start never
// ran or failed.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logger.Infof("Stopped mDNS advertisement")
}

// Active reports whether an advertisement is currently registered.
func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// instanceName returns the configured instance name, or one derived
// from the hostname, clipped to the DNS label limit.
func (a *Advertiser) instanceName() string {
	name := strings.TrimSpace(a.config.Instance)
	if name == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			name = "chronarr"
		} else {
			name = "chronarr-" + host
		}
	}
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	return name
}

// txtRecords builds the static TXT payload.
func (a *Advertiser) txtRecords() []string {
	version := a.config.Version
	if version == "" {
		version = "unknown"
	}
	return []string{
		"version=" + version,
		"api=" + APIPath,
	}
}

// interfaces returns the interfaces to advertise on, nil meaning all.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		logger.Warnf("Unknown mDNS interface %q, advertising on all interfaces", a.config.Interface)
		return nil
	}
	return []net.Interface{*iface}
}
