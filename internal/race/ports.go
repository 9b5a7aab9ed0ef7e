package race

import (
	"fmt"
	"strconv"
	"strings"
)

// TORCS exposes ten fixed robot slots named "scr_server 1".."scr_server
// 10", listening on consecutive ports starting at 3001. A competitor's
// position in the ordered field decides its slot, and the slot decides
// both the driver name in the results file and the port its client is
// told to connect to. The mapping is pure and stable for the lifetime
// of an attempt.
const (
	BasePort = 3001
	MaxSlots = 10

	driverPrefix = "scr_server "
)

// SlotPort returns the network port for a 0-based slot index.
func SlotPort(slot int) int { return BasePort + slot }

// SlotDriver returns the TORCS driver name for a 0-based slot index.
func SlotDriver(slot int) string {
	return fmt.Sprintf("%s%d", driverPrefix, slot+1)
}

// DriverSlot maps a driver name from the results file back to its
// 0-based slot index.
func DriverSlot(name string) (int, bool) {
	num, ok := strings.CutPrefix(name, driverPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > MaxSlots {
		return 0, false
	}
	return n - 1, true
}
