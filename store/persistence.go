// store/persistence.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/model"
)

// Persistence is the write-through backing for the in-memory snapshot store.
// Saves happen under the store's write lock so persisted state never runs
// ahead of a published snapshot.
type Persistence interface {
	EnsureSchema(ctx context.Context) error
	SavePrincipal(ctx context.Context, principal *model.Principal) error
	SaveRole(ctx context.Context, role *model.Role) error
	SavePermission(ctx context.Context, permission *model.Permission) error
	SaveResource(ctx context.Context, resource *model.Resource) error
	SaveGrant(ctx context.Context, grant *model.ResourceGrant) error
	SaveTemporalRule(ctx context.Context, rule *model.TemporalRule) error
	SaveConditionalRule(ctx context.Context, rule *model.ConditionalRule) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Node labels for the policy graph.
const (
	LabelPrincipal       = "Principal"
	LabelRole            = "Role"
	LabelPermission      = "Permission"
	LabelResource        = "Resource"
	LabelGrant           = "ResourceGrant"
	LabelTemporalRule    = "TemporalRule"
	LabelConditionalRule = "ConditionalRule"
)

var policyLabels = []string{
	LabelPrincipal, LabelRole, LabelPermission, LabelResource,
	LabelGrant, LabelTemporalRule, LabelConditionalRule,
}

// Neo4jPersistence stores each policy entity as a node carrying its JSON
// document. Nodes are merged by id, so saves are idempotent and revocations
// update the grant node in place while the record itself stays append-only.
type Neo4jPersistence struct {
	Driver neo4j.Driver
}

func NewNeo4jPersistence(driver neo4j.Driver) *Neo4jPersistence {
	return &Neo4jPersistence{Driver: driver}
}

func (p *Neo4jPersistence) EnsureSchema(ctx context.Context) error {
	logger.Info("Ensuring unique constraints on policy node IDs")
	session := p.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		for _, label := range policyLabels {
			query := fmt.Sprintf(`
			CREATE CONSTRAINT unique_%s_id IF NOT EXISTS
			FOR (n:%s) REQUIRE n.id IS UNIQUE
			`, label, label)
			if _, err := transaction.Run(query, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		logger.Error("Failed to ensure unique constraints", zap.Error(err))
		return err
	}
	return nil
}

func (p *Neo4jPersistence) saveNode(ctx context.Context, label, id string, entity interface{}) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", label, id, err)
	}

	session := p.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err = session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
		MERGE (n:` + label + ` {id: $id})
		SET n.data = $data,
			n.updatedAt = $updatedAt
		`
		return transaction.Run(query, map[string]interface{}{
			"id":        id,
			"data":      string(data),
			"updatedAt": time.Now().Format(time.RFC3339),
		})
	})
	if err != nil {
		logger.Error("Failed to save policy node",
			zap.String("label", label),
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to save %s %s: %w", label, id, err)
	}
	return nil
}

func (p *Neo4jPersistence) loadNodes(ctx context.Context, label string, visit func(data string) error) error {
	session := p.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	_, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		result, err := transaction.Run(`MATCH (n:`+label+`) RETURN n.data`, nil)
		if err != nil {
			return nil, err
		}
		for result.Next() {
			data, ok := result.Record().Values[0].(string)
			if !ok {
				continue
			}
			if err := visit(data); err != nil {
				return nil, err
			}
		}
		return nil, result.Err()
	})
	if err != nil {
		return fmt.Errorf("failed to load %s nodes: %w", label, err)
	}
	return nil
}

func (p *Neo4jPersistence) SavePrincipal(ctx context.Context, principal *model.Principal) error {
	return p.saveNode(ctx, LabelPrincipal, principal.ID, principal)
}

func (p *Neo4jPersistence) SaveRole(ctx context.Context, role *model.Role) error {
	return p.saveNode(ctx, LabelRole, role.ID, role)
}

func (p *Neo4jPersistence) SavePermission(ctx context.Context, permission *model.Permission) error {
	return p.saveNode(ctx, LabelPermission, permission.ID, permission)
}

func (p *Neo4jPersistence) SaveResource(ctx context.Context, resource *model.Resource) error {
	return p.saveNode(ctx, LabelResource, resource.ID, resource)
}

func (p *Neo4jPersistence) SaveGrant(ctx context.Context, grant *model.ResourceGrant) error {
	return p.saveNode(ctx, LabelGrant, grant.ID, grant)
}

func (p *Neo4jPersistence) SaveTemporalRule(ctx context.Context, rule *model.TemporalRule) error {
	return p.saveNode(ctx, LabelTemporalRule, rule.ID, rule)
}

func (p *Neo4jPersistence) SaveConditionalRule(ctx context.Context, rule *model.ConditionalRule) error {
	return p.saveNode(ctx, LabelConditionalRule, rule.ID, rule)
}

// Load rebuilds a snapshot from the persisted policy graph.
func (p *Neo4jPersistence) Load(ctx context.Context) (*Snapshot, error) {
	snap := newSnapshot()

	if err := p.loadNodes(ctx, LabelPrincipal, func(data string) error {
		var principal model.Principal
		if err := json.Unmarshal([]byte(data), &principal); err != nil {
			return err
		}
		snap.principals[principal.ID] = &principal
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.loadNodes(ctx, LabelRole, func(data string) error {
		var role model.Role
		if err := json.Unmarshal([]byte(data), &role); err != nil {
			return err
		}
		snap.roles[role.ID] = &role
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.loadNodes(ctx, LabelPermission, func(data string) error {
		var permission model.Permission
		if err := json.Unmarshal([]byte(data), &permission); err != nil {
			return err
		}
		snap.permissions[permission.ID] = &permission
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.loadNodes(ctx, LabelResource, func(data string) error {
		var resource model.Resource
		if err := json.Unmarshal([]byte(data), &resource); err != nil {
			return err
		}
		snap.resources[resource.ID] = &resource
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.loadNodes(ctx, LabelGrant, func(data string) error {
		var grant model.ResourceGrant
		if err := json.Unmarshal([]byte(data), &grant); err != nil {
			return err
		}
		key := grantKey(grant.PrincipalID, grant.ResourceID)
		snap.grants[key] = append(snap.grants[key], &grant)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.loadNodes(ctx, LabelTemporalRule, func(data string) error {
		var rule model.TemporalRule
		if err := json.Unmarshal([]byte(data), &rule); err != nil {
			return err
		}
		key := ruleKey(rule.SubjectID, rule.ResourceID, rule.PermissionID)
		snap.temporalRules[key] = append(snap.temporalRules[key], &rule)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.loadNodes(ctx, LabelConditionalRule, func(data string) error {
		var rule model.ConditionalRule
		if err := json.Unmarshal([]byte(data), &rule); err != nil {
			return err
		}
		key := ruleKey(rule.SubjectID, rule.ResourceID, rule.PermissionID)
		snap.conditionalRules[key] = append(snap.conditionalRules[key], &rule)
		return nil
	}); err != nil {
		return nil, err
	}

	logger.Info("Loaded policy graph from Neo4j", zap.String("snapshot", snap.String()))
	return snap, nil
}
