package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// DeviceIdentity is the emulated hardware identity, fixed for the process
// lifetime.
type DeviceIdentity struct {
	// 12 upper case hex digits, no separators
	MAC string
}

// DeviceID returns the identifier used as RPC source and mDNS instance name.
func (d DeviceIdentity) DeviceID() string {
	return fmt.Sprintf("shellypro3em-%s", strings.ToLower(d.MAC))
}

// DeriveMAC builds a stable hardware address from a host identity so that
// restarts advertise the same records.
func DeriveMAC(hostIdentity string) string {
	sum := md5.Sum([]byte(hostIdentity))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:12])
}
