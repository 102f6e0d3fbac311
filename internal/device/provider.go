package device

import "context"

// Handle is a provider's view of one device.
//
// Listen must not block: it registers fn and returns. fn is called from
// provider goroutines for every control value change until stop is called.
// Write is a non-blocking hand-off to the provider's output path.
type Handle interface {
	Title() string
	Type() DeviceType
	Listen(fn func(ctrl Control, value int64)) (stop func(), err error)
	Write(ctx context.Context, ctrl Control, value int64) error
}

// ProviderReport lists the devices one provider exposes for one direction,
// keyed by the provider's device index.
type ProviderReport struct {
	ProviderID string
	Title      string
	Devices    map[int]Handle
}

// Provider enumerates physical devices.
type Provider interface {
	InputList() map[string]ProviderReport
	OutputList() map[string]ProviderReport
}
