// Package access holds the static role policy shared by the HTTP and gRPC
// adapters. The gateway authenticates callers and forwards their role in
// the x-user-role header; an absent role is an anonymous visitor.
package access

import "strings"

// Capability is a tag a role may hold.
type Capability string

const (
	ReadJobs        Capability = "jobs:read"
	WriteJobs       Capability = "jobs:write"
	TransitionJobs  Capability = "jobs:transition"
	RunTransitions  Capability = "transitions:run"
	RecordAnalytics Capability = "analytics:record"
	ReadAnalytics   Capability = "analytics:read"
)

// Role names as forwarded by the gateway.
const (
	RoleAnonymous = ""
	RoleRecruiter = "recruiter"
	RoleAnalyst   = "analyst"
	RoleAdmin     = "admin"
)

// RoleHeader carries the caller's role, as HTTP header and gRPC metadata key.
const RoleHeader = "x-user-role"

var policy = map[string][]Capability{
	RoleAnonymous: {ReadJobs, RecordAnalytics},
	RoleRecruiter: {ReadJobs, RecordAnalytics, WriteJobs, TransitionJobs},
	RoleAnalyst:   {ReadJobs, RecordAnalytics, ReadAnalytics},
	RoleAdmin:     {ReadJobs, RecordAnalytics, WriteJobs, TransitionJobs, RunTransitions, ReadAnalytics},
}

// Allowed reports whether role holds c. Unknown roles hold nothing.
func Allowed(role string, c Capability) bool {
	for _, have := range policy[strings.ToLower(strings.TrimSpace(role))] {
		if have == c {
			return true
		}
	}
	return false
}

// Known reports whether role appears in the policy table.
func Known(role string) bool {
	_, ok := policy[strings.ToLower(strings.TrimSpace(role))]
	return ok
}
