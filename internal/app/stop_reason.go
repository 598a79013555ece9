package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopSignal  StopReason = "signal"
	StopAppStop StopReason = "app_stop"
)
