package services

import "context"

type AuditStore interface {
	ListAudit(ctx context.Context) ([]AuditEntry, error)
}

// AuditService exposes the audit trail to admins.
type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Recent returns the newest entries first. A limit of zero or less returns
// everything.
func (s *AuditService) Recent(ctx context.Context, actor Actor, limit int) ([]AuditEntry, error) {
	if actor.Role != RoleAdmin || actor.UserID == "" {
		return nil, NewForbiddenError("forbidden")
	}
	entries, err := s.store.ListAudit(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, entries[i])
	}
	return out, nil
}
