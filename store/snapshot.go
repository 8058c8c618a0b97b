// store/snapshot.go
package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/aegis-authz/aegis/model"
)

// Snapshot is one immutable version of the policy state. Every evaluation
// pins a single snapshot for its whole duration; writes never mutate a
// published snapshot, they clone it and publish a successor.
type Snapshot struct {
	version          int64
	principals       map[string]*model.Principal
	roles            map[string]*model.Role
	permissions      map[string]*model.Permission
	resources        map[string]*model.Resource
	grants           map[string][]*model.ResourceGrant
	temporalRules    map[string][]*model.TemporalRule
	conditionalRules map[string][]*model.ConditionalRule
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		principals:       make(map[string]*model.Principal),
		roles:            make(map[string]*model.Role),
		permissions:      make(map[string]*model.Permission),
		resources:        make(map[string]*model.Resource),
		grants:           make(map[string][]*model.ResourceGrant),
		temporalRules:    make(map[string][]*model.TemporalRule),
		conditionalRules: make(map[string][]*model.ConditionalRule),
	}
}

func grantKey(principalID, resourceID string) string {
	return principalID + "|" + resourceID
}

func ruleKey(subjectID, resourceID, permissionID string) string {
	return subjectID + "|" + resourceID + "|" + permissionID
}

// clone copies the snapshot's index maps. Entity values are shared between
// versions and treated as immutable: writes replace entries, never edit them.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		version:          s.version,
		principals:       make(map[string]*model.Principal, len(s.principals)),
		roles:            make(map[string]*model.Role, len(s.roles)),
		permissions:      make(map[string]*model.Permission, len(s.permissions)),
		resources:        make(map[string]*model.Resource, len(s.resources)),
		grants:           make(map[string][]*model.ResourceGrant, len(s.grants)),
		temporalRules:    make(map[string][]*model.TemporalRule, len(s.temporalRules)),
		conditionalRules: make(map[string][]*model.ConditionalRule, len(s.conditionalRules)),
	}
	for k, v := range s.principals {
		next.principals[k] = v
	}
	for k, v := range s.roles {
		next.roles[k] = v
	}
	for k, v := range s.permissions {
		next.permissions[k] = v
	}
	for k, v := range s.resources {
		next.resources[k] = v
	}
	for k, v := range s.grants {
		next.grants[k] = append([]*model.ResourceGrant(nil), v...)
	}
	for k, v := range s.temporalRules {
		next.temporalRules[k] = append([]*model.TemporalRule(nil), v...)
	}
	for k, v := range s.conditionalRules {
		next.conditionalRules[k] = append([]*model.ConditionalRule(nil), v...)
	}
	return next
}

// Version returns the snapshot's policy version.
func (s *Snapshot) Version() int64 {
	return s.version
}

func (s *Snapshot) PrincipalByID(id string) (*model.Principal, bool) {
	p, ok := s.principals[id]
	return p, ok
}

func (s *Snapshot) RoleByID(id string) (*model.Role, bool) {
	r, ok := s.roles[id]
	return r, ok
}

func (s *Snapshot) PermissionByID(id string) (*model.Permission, bool) {
	p, ok := s.permissions[id]
	return p, ok
}

func (s *Snapshot) ResourceByID(id string) (*model.Resource, bool) {
	r, ok := s.resources[id]
	return r, ok
}

// RolesForPrincipal returns the roles whose assignment to the principal is
// active at the given instant, ordered by descending level for stable
// tie-break reporting.
func (s *Snapshot) RolesForPrincipal(principalID string, at time.Time) []*model.Role {
	principal, ok := s.principals[principalID]
	if !ok {
		return nil
	}
	var roles []*model.Role
	for i := range principal.RoleAssignments {
		assignment := &principal.RoleAssignments[i]
		if !assignment.ActiveAt(at) {
			continue
		}
		if role, ok := s.roles[assignment.RoleID]; ok {
			roles = append(roles, role)
		}
	}
	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Level > roles[j].Level
	})
	return roles
}

// GrantsFor returns every grant, including revoked ones, recorded for the
// principal/resource pair. History is never erased; callers filter.
func (s *Snapshot) GrantsFor(principalID, resourceID string) []*model.ResourceGrant {
	return s.grants[grantKey(principalID, resourceID)]
}

// TemporalRulesFor returns the temporal rules bound to any of the subject
// IDs for the resource/permission pair.
func (s *Snapshot) TemporalRulesFor(subjectIDs []string, resourceID, permissionID string) []*model.TemporalRule {
	var rules []*model.TemporalRule
	for _, subjectID := range subjectIDs {
		rules = append(rules, s.temporalRules[ruleKey(subjectID, resourceID, permissionID)]...)
	}
	return rules
}

// ConditionalRulesFor returns the conditional rules bound to any of the
// subject IDs for the resource/permission pair.
func (s *Snapshot) ConditionalRulesFor(subjectIDs []string, resourceID, permissionID string) []*model.ConditionalRule {
	var rules []*model.ConditionalRule
	for _, subjectID := range subjectIDs {
		rules = append(rules, s.conditionalRules[ruleKey(subjectID, resourceID, permissionID)]...)
	}
	return rules
}

// Roles returns all roles sorted by name.
func (s *Snapshot) Roles() []*model.Role {
	roles := make([]*model.Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// Permissions returns all permissions sorted by name.
func (s *Snapshot) Permissions() []*model.Permission {
	permissions := make([]*model.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		permissions = append(permissions, p)
	}
	sort.Slice(permissions, func(i, j int) bool { return permissions[i].Name < permissions[j].Name })
	return permissions
}

// Resources returns all resources sorted by name.
func (s *Snapshot) Resources() []*model.Resource {
	resources := make([]*model.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		resources = append(resources, r)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
	return resources
}

// TemporalRules returns all temporal rules sorted by name.
func (s *Snapshot) TemporalRules() []*model.TemporalRule {
	var rules []*model.TemporalRule
	for _, bucket := range s.temporalRules {
		rules = append(rules, bucket...)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// ConditionalRules returns all conditional rules sorted by name.
func (s *Snapshot) ConditionalRules() []*model.ConditionalRule {
	var rules []*model.ConditionalRule
	for _, bucket := range s.conditionalRules {
		rules = append(rules, bucket...)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

func (s *Snapshot) roleByName(name string) (*model.Role, bool) {
	for _, r := range s.roles {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

func (s *Snapshot) permissionByName(name string) (*model.Permission, bool) {
	for _, p := range s.permissions {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("policy snapshot v%d (%d roles, %d permissions, %d resources)",
		s.version, len(s.roles), len(s.permissions), len(s.resources))
}
