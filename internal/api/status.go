package api

// ServerStatus is the lifecycle status of a worker server.
type ServerStatus string

const (
	StatusOffline     ServerStatus = "OFFLINE"
	StatusStarting    ServerStatus = "STARTING"
	StatusOnline      ServerStatus = "ONLINE"
	StatusError       ServerStatus = "ERROR"
	StatusMaintenance ServerStatus = "MAINTENANCE"
)

// AllStatuses lists every status in display order.
var AllStatuses = []ServerStatus{
	StatusOnline,
	StatusStarting,
	StatusMaintenance,
	StatusError,
	StatusOffline,
}

// allowedTransitions encodes the supervisor state machine. Transitions to OFFLINE
// are allowed from every state and are handled in CanTransitionTo.
var allowedTransitions = map[ServerStatus][]ServerStatus{
	StatusOffline:     {StatusStarting},
	StatusStarting:    {StatusOnline, StatusError},
	StatusOnline:      {StatusError, StatusMaintenance},
	StatusError:       {StatusStarting},
	StatusMaintenance: {StatusOnline, StatusError},
}

// IsValid reports whether s is one of the known statuses.
func (s ServerStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
// Shutdown (any state to OFFLINE) is always legal.
func (s ServerStatus) CanTransitionTo(next ServerStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if next == StatusOffline {
		return true
	}
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// HasProcess reports whether a descriptor in this status owns a live OS process.
func (s ServerStatus) HasProcess() bool {
	return s == StatusStarting || s == StatusOnline || s == StatusMaintenance
}

// IsRoutable reports whether requests may be delivered to a server in this status.
func (s ServerStatus) IsRoutable() bool {
	return s == StatusOnline
}
