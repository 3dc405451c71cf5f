package normalize

import "fmt"

// Topics builds the topics of one root namespace.
//
//	topics := normalize.Topics{Root: "office"}
//	topics.Room("room1")                 // "office/room1"
//	topics.RoomFilter("room1")           // "office/room1/#"
//	topics.DeviceState("room1", "light") // "office/room1/light/state"
type Topics struct {
	Root string
}

// Room returns the new-format topic a room's JSON state is published on.
func (t Topics) Room(contextID string) string {
	return fmt.Sprintf("%s/%s", t.Root, contextID)
}

// RoomFilter returns the subscription filter for a room.
//
// "#" matches the parent level as well, so one subscription carries both
// the new-format room topic and the legacy device topics beneath it.
func (t Topics) RoomFilter(contextID string) string {
	return fmt.Sprintf("%s/%s/#", t.Root, contextID)
}

// DeviceState returns the device-state key a context field is stored under.
func (t Topics) DeviceState(contextID, key string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.Root, contextID, key)
}

// DeviceControl returns the legacy control topic for a device.
func (t Topics) DeviceControl(contextID, device string) string {
	return fmt.Sprintf("%s/%s/%s/control", t.Root, contextID, device)
}
