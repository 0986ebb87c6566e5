package client

// Permission is the tri-state desktop alert permission exposed by the host
// environment.
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// Alerter abstracts the host's desktop notification facility so the
// subscriber can be tested without one. Raise implementations are expected
// to coalesce repeated calls with the same dedupe key.
type Alerter interface {
	RequestPermission() Permission
	CurrentStatus() Permission
	Raise(title, body, dedupeKey string)
}

// NopAlerter is an Alerter for headless environments: permission is always
// denied and alerts go nowhere.
type NopAlerter struct{}

func (NopAlerter) RequestPermission() Permission { return PermissionDenied }
func (NopAlerter) CurrentStatus() Permission     { return PermissionDenied }
func (NopAlerter) Raise(string, string, string)  {}
