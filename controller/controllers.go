// controller/controllers.go
package controller

import "github.com/aegis-authz/aegis/service"

type Controllers struct {
	Access *AccessController
	Policy *PolicyController
	Audit  *AuditController
}

func InitializeControllers(services *service.Services) *Controllers {
	return &Controllers{
		Access: NewAccessController(services.Access),
		Policy: NewPolicyController(services.Policy),
		Audit:  NewAuditController(services.Audit),
	}
}
