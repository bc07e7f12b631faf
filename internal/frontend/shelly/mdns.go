package shelly

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/berfenger/meteremu/internal/core/domain"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	MDNS_SERVICE_HTTP   = "_http._tcp"
	MDNS_SERVICE_SHELLY = "_shelly._tcp"
	MDNS_DOMAIN         = "local."
)

// Advertiser publishes the device records on the local link.
type Advertiser struct {
	identity    domain.DeviceIdentity
	port        int
	advertiseIP string
	servers     []*zeroconf.Server
	logger      *zap.Logger
}

func NewAdvertiser(identity domain.DeviceIdentity, port int, advertiseIP string, logger *zap.Logger) *Advertiser {
	return &Advertiser{
		identity:    identity,
		port:        port,
		advertiseIP: advertiseIP,
		logger:      logger,
	}
}

// TXTRecords returns the TXT entries announced with both services.
func TXTRecords(identity domain.DeviceIdentity) []string {
	return []string{
		"id=" + identity.DeviceID(),
		"mac=" + identity.MAC,
		"arch=esp32",
		fmt.Sprintf("gen=%d", GEN),
		"app=" + APP,
	}
}

// HostName returns the advertised target host, <hostname>.local.
func HostName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return host + "." + MDNS_DOMAIN
}

// LocalIP returns the address of the interface holding the default route.
// No packet is sent.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("unexpected local address type")
	}
	return addr.IP.String(), nil
}

func (a *Advertiser) resolveIP() (string, error) {
	if a.advertiseIP != "" {
		return a.advertiseIP, nil
	}
	return LocalIP()
}

// Start registers both services. Records registered before a failure are
// withdrawn again.
func (a *Advertiser) Start() error {
	ip, err := a.resolveIP()
	if err != nil {
		return fmt.Errorf("mdns: could not resolve local address: %w", err)
	}
	instance := a.identity.DeviceID()
	host := HostName()
	txt := TXTRecords(a.identity)

	for _, service := range []string{MDNS_SERVICE_HTTP, MDNS_SERVICE_SHELLY} {
		server, err := zeroconf.RegisterProxy(instance, service, MDNS_DOMAIN, a.port, host, []string{ip}, txt, nil)
		if err != nil {
			a.Stop()
			return fmt.Errorf("mdns: could not register %s: %w", service, err)
		}
		a.servers = append(a.servers, server)
	}
	a.logger.Info("mdns: advertising",
		zap.String("instance", instance), zap.String("host", host),
		zap.String("ip", ip), zap.Int("port", a.port))
	return nil
}

// Stop withdraws the records.
func (a *Advertiser) Stop() {
	for _, server := range a.servers {
		server.Shutdown()
	}
	if len(a.servers) > 0 {
		a.logger.Info("mdns: records withdrawn")
	}
	a.servers = nil
}
