// service/access_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/pdp/engine"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
)

// IAccessService defines the interface for access decisions
type IAccessService interface {
	Evaluate(ctx context.Context, request pdp_model.AccessRequest) (*pdp_model.Decision, error)
}

// AccessService fronts the decision engine. It normalizes requests and keeps
// the engine free of transport concerns.
type AccessService struct {
	evaluator *engine.Evaluator
}

var _ IAccessService = &AccessService{}

func NewAccessService(evaluator *engine.Evaluator) *AccessService {
	return &AccessService{evaluator: evaluator}
}

// Evaluate decides ALLOW/DENY for the request. Policy denials come back as
// decisions with a nil error; an error marks an infrastructure fail-closed
// denial.
func (s *AccessService) Evaluate(ctx context.Context, request pdp_model.AccessRequest) (*pdp_model.Decision, error) {
	if request.Timestamp.IsZero() {
		request.Timestamp = time.Now()
	}
	decision, err := s.evaluator.Evaluate(ctx, &request)
	if err != nil {
		return decision, err
	}
	logger.Debug("Access evaluated",
		zap.String("principalID", request.PrincipalID),
		zap.String("resourceID", request.ResourceID),
		zap.String("action", request.Action),
		zap.String("outcome", decision.Outcome),
		zap.String("reason", decision.Reason))
	return decision, nil
}
