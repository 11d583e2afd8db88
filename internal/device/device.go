package device

import "fmt"

// Device identifies one accelerator by ordinal. None is the sentinel used
// when the training step runs without an accelerator.
type Device int

// None means "no accelerator": the inline no-device mode binds to it.
const None Device = -1

func (d Device) String() string {
	if d == None {
		return "cpu"
	}
	return fmt.Sprintf("cuda:%d", int(d))
}

// Ordinal returns the raw device index, -1 for None.
func (d Device) Ordinal() int {
	return int(d)
}
