// service/services.go
package service

import (
	"github.com/aegis-authz/aegis/audit"
	"github.com/aegis-authz/aegis/pdp/engine"
	"github.com/aegis-authz/aegis/store"
	"github.com/aegis-authz/aegis/util"
)

type Services struct {
	Policy IPolicyService
	Access IAccessService
	Audit  audit.Service
}

func InitializeServices(
	policyStore *store.Store,
	evaluator *engine.Evaluator,
	auditService audit.Service,
	validationUtil *util.ValidationUtil,
	notificationSvc *util.NotificationService,
	eventBus *util.EventBus,
) (*Services, error) {
	services := &Services{
		Policy: NewPolicyService(policyStore, validationUtil, notificationSvc, eventBus),
		Access: NewAccessService(evaluator),
		Audit:  auditService,
	}

	return services, nil
}
