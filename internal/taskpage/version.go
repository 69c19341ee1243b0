// Package taskpage orchestrates the task detail view: which implementation
// version is shown, what may be deleted, how evaluation-config graders are
// ordered, and the polling of in-flight optimization jobs.
package taskpage

import (
	"errors"
	"fmt"

	"github.com/r4u-dev/r4u-console/internal/api"
)

// ErrProductionVersion is returned when a delete targets the version the
// task currently serves in production.
var ErrProductionVersion = errors.New("implementation is the production version")

// SelectVersion picks the version the page shows after the implementation
// list is (re)loaded. Priority order:
//
//  1. justCreated, when it exists in the fresh list
//  2. the task's production version, when it exists in the list
//  3. the first listed version
//  4. "" when the list is empty
func SelectVersion(impls []api.Implementation, task *api.Task, justCreated string) string {
	if justCreated != "" && hasVersion(impls, justCreated) {
		return justCreated
	}
	if task != nil && task.ProductionVersion != nil && hasVersion(impls, *task.ProductionVersion) {
		return *task.ProductionVersion
	}
	if len(impls) > 0 {
		return impls[0].Version
	}
	return ""
}

// CheckDeletable guards implementation deletion. The production version is
// never deletable; everything else is.
func CheckDeletable(task *api.Task, version string) error {
	if task != nil && task.ProductionVersion != nil && *task.ProductionVersion == version {
		return fmt.Errorf("version %s: %w", version, ErrProductionVersion)
	}
	return nil
}

func hasVersion(impls []api.Implementation, version string) bool {
	for _, impl := range impls {
		if impl.Version == version {
			return true
		}
	}
	return false
}

// FindImplementation resolves a version string to its implementation, or
// nil when the version is not in the list.
func FindImplementation(impls []api.Implementation, version string) *api.Implementation {
	for i := range impls {
		if impls[i].Version == version {
			return &impls[i]
		}
	}
	return nil
}
