package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Engine action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrTransitioning = "E_TRANSITIONING"
	ErrLocked        = "E_LOCKED"
	ErrGateBlocked   = "E_GATE_BLOCKED"
	ErrNoQi          = "E_NO_QI"
	ErrMaxed         = "E_MAXED"
	ErrSpeedLocked   = "E_SPEED_LOCKED"
	ErrBadMode       = "E_BAD_MODE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrTransitioning:   {},
	ErrLocked:          {},
	ErrGateBlocked:     {},
	ErrNoQi:            {},
	ErrMaxed:           {},
	ErrSpeedLocked:     {},
	ErrBadMode:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
