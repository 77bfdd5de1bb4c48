package shim

// Device flags accepted by SetDeviceFlags. At most one scheduling flag may
// be set.
const (
	DeviceScheduleAuto         uint32 = 0x00
	DeviceScheduleSpin         uint32 = 0x01
	DeviceScheduleYield        uint32 = 0x02
	DeviceScheduleBlockingSync uint32 = 0x04
	DeviceMapHost              uint32 = 0x08
	DeviceLmemResizeToMax      uint32 = 0x10

	deviceScheduleMask = DeviceScheduleSpin | DeviceScheduleYield | DeviceScheduleBlockingSync
	deviceFlagsMask    = deviceScheduleMask | DeviceMapHost | DeviceLmemResizeToMax
)

func validFlags(flags uint32) bool {
	if flags&^deviceFlagsMask != 0 {
		return false
	}
	switch flags & deviceScheduleMask {
	case DeviceScheduleAuto, DeviceScheduleSpin, DeviceScheduleYield, DeviceScheduleBlockingSync:
		return true
	}
	return false
}
