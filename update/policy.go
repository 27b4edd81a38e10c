// Package update implements the update-check caching policy: how often a
// node is allowed to ask whether a newer Yoop is available. It does not
// perform the registry lookup or package-manager invocation itself —
// those reach outside the local network and are out of scope here —
// callers plug their own check function into CheckWithCache.
package update

import (
	"time"

	"github.com/sanchxt/yoop-sub002/migration"
)

// Status is the result of a version comparison against whatever source a
// caller's check function queried.
type Status struct {
	CurrentVersion  migration.Version
	LatestVersion   migration.Version
	UpdateAvailable bool
	ReleaseURL      string
}

// NewStatus compares current against latest and fills in UpdateAvailable.
func NewStatus(current, latest migration.Version, releaseURL string) Status {
	return Status{
		CurrentVersion:  current,
		LatestVersion:   latest,
		UpdateAvailable: latest.Compare(current) > 0,
		ReleaseURL:      releaseURL,
	}
}

// Policy decides when an update check is due, based on the last check
// time and a configured interval (config's update.check_interval).
type Policy struct {
	CheckInterval time.Duration
}

// Due reports whether enough time has elapsed since lastCheck for another
// check to run. A zero lastCheck (never checked) is always due.
func (p Policy) Due(now, lastCheck time.Time) bool {
	if lastCheck.IsZero() {
		return true
	}
	return now.Sub(lastCheck) >= p.CheckInterval
}

// CheckFunc performs the actual remote version lookup, returning the
// latest known version and its release URL.
type CheckFunc func() (latest migration.Version, releaseURL string, err error)

// CheckWithCache runs check only if the policy says a check is due,
// returning nil, nil otherwise. Callers are responsible for persisting
// the check time (now) back into their config after a successful call.
func (p Policy) CheckWithCache(now, lastCheck time.Time, current migration.Version, check CheckFunc) (*Status, error) {
	if !p.Due(now, lastCheck) {
		return nil, nil
	}
	latest, releaseURL, err := check()
	if err != nil {
		return nil, err
	}
	status := NewStatus(current, latest, releaseURL)
	return &status, nil
}
