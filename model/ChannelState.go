package model

// ChannelState is derived from Account fields, never stored separately.
type ChannelState int

const (
	// ChannelStateOpen means no channel transaction is pending.
	ChannelStateOpen ChannelState = iota

	// ChannelStatePending means a co-signed channel transaction is held but
	// not yet broadcast; newer updates replace it.
	ChannelStatePending

	// ChannelStateClosing means the account is locked and its last channel
	// transaction has been handed to the broadcaster.
	ChannelStateClosing

	// ChannelStateClosed means the broadcast transaction reached the
	// configured confirmation depth; the account is about to return to open.
	ChannelStateClosed
)

var channelStateNames = map[ChannelState]string{
	ChannelStateOpen:    "OPEN",
	ChannelStatePending: "PENDING",
	ChannelStateClosing: "CLOSING",
	ChannelStateClosed:  "CLOSED",
}

func (s ChannelState) String() string {
	name, ok := channelStateNames[s]
	if !ok {
		return "UNKNOWN"
	}

	return name
}
