// util/notification_service.go

package util

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logger "github.com/aegis-authz/aegis/logging"
)

type NotificationService struct {
	// A message queue client would live here in a full deployment.
}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotifyPolicyChange announces a policy-store mutation to interested systems.
func (n *NotificationService) NotifyPolicyChange(ctx context.Context, change PolicyChange) error {
	switch change.ChangeType {
	case "created", "updated", "revoked":
		logger.Info("NOTIFICATION: Policy change",
			zap.String("entity", change.Entity),
			zap.String("entityID", change.EntityID),
			zap.String("changeType", change.ChangeType),
			zap.Int64("version", change.Version))
	default:
		return fmt.Errorf("unknown change type: %s", change.ChangeType)
	}
	return nil
}

// NotifyOperationalFault escalates an infrastructure fault, such as an audit
// sink failure that forced a fail-closed denial. Distinct from policy DENYs.
func (n *NotificationService) NotifyOperationalFault(ctx context.Context, component string, err error) {
	logger.Error("NOTIFICATION: Operational fault",
		zap.String("component", component),
		zap.Error(err))
}

// NotifyAdmins notifies system administrators.
func (n *NotificationService) NotifyAdmins(ctx context.Context, message string) error {
	logger.Info("Notifying admins", zap.String("message", message))
	return nil
}
