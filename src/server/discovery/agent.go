package discovery

import (
	"sync"

	"relaymate-utils/src/server"
	"relaymate-utils/src/server/config"
)

var (
	deviceType     string
	deviceTypeOnce sync.Once
)

// GetDeviceType returns the device type (relaymate or relaymate-dev)
// The result is cached after the first call for performance
func GetDeviceType() string {
	deviceTypeOnce.Do(func() {
		deviceType = "relaymate-dev"
		if server.IsRelayHub() {
			deviceType = "relaymate"
		}

		// Config override
		if config.GetConfig().Type != "" {
			deviceType = config.GetConfig().Type
		}
	})
	return deviceType
}
