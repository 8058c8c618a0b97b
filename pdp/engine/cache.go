package engine

import (
	"context"
	"fmt"

	pdp_model "github.com/aegis-authz/aegis/pdp/model"
)

// DecisionCache memoizes recent decisions. Keys embed the snapshot version,
// so a policy write makes every stale entry unreachable without explicit
// invalidation; entries then age out via TTL.
type DecisionCache interface {
	Get(ctx context.Context, key string) (*pdp_model.Decision, error)
	Set(ctx context.Context, key string, decision *pdp_model.Decision) error
}

func cacheKey(version int64, request *pdp_model.AccessRequest) string {
	return fmt.Sprintf("decision:%d:%s:%s:%s:%s",
		version,
		request.PrincipalID,
		request.ResourceID,
		request.Action,
		request.Context.Fingerprint())
}
