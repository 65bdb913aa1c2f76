package types

// WakeCause is the raw reason the platform reports for leaving suspend.
type WakeCause int

const (
	CauseUndefined WakeCause = iota // power-on or reset, not a wake from suspend
	CauseTimer
	CauseExt0 // single external pin (the configuration button)
	CauseExt1 // external pin group
	CauseTouchpad
	CauseULP
)

func (c WakeCause) String() string {
	switch c {
	case CauseTimer:
		return "timer"
	case CauseExt0:
		return "ext0"
	case CauseExt1:
		return "ext1"
	case CauseTouchpad:
		return "touchpad"
	case CauseULP:
		return "ulp"
	default:
		return "undefined"
	}
}

// WakeReason is the classified cause the scheduler acts on.
type WakeReason int

const (
	WakeOther WakeReason = iota
	WakeTimer
	WakeExternal
)

func (r WakeReason) String() string {
	switch r {
	case WakeTimer:
		return "timer"
	case WakeExternal:
		return "external"
	default:
		return "other"
	}
}
