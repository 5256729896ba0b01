package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound indicates that the requested grant or consultant does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrInvalidGrant is returned for grants without a resource name.
	ErrInvalidGrant = errors.New("rbac: invalid grant")
)

// grantLoadTimeout bounds a shared grant load, which no longer follows the
// cancellation of the request that started it.
const grantLoadTimeout = 5 * time.Second

// DecisionRecorder receives every authorization outcome.
type DecisionRecorder interface {
	RecordAuthz(role, action string, allowed bool)
}

// Service loads consultant grants and answers authorization questions.
type Service struct {
	repo     Repository
	cache    *GrantCache
	logger   *slog.Logger
	recorder DecisionRecorder
	loads    singleflight.Group
}

// NewService wires a Service. cache, logger and recorder may be nil.
func NewService(repo Repository, cache *GrantCache, logger *slog.Logger, recorder DecisionRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, recorder: recorder}
}

// Grants returns the grants held by a consultant. Concurrent calls for the same
// consultant share one load.
func (s *Service) Grants(ctx context.Context, consultantID string) ([]Grant, error) {
	consultantID = strings.TrimSpace(consultantID)
	if consultantID == "" {
		return nil, nil
	}
	if grants, ok, err := s.cache.Get(ctx, consultantID); err != nil {
		s.logger.Warn("rbac grant cache get", slog.String("consultant_id", consultantID), slog.Any("error", err))
	} else if ok {
		return grants, nil
	}

	ch := s.loads.DoChan(consultantID, func() (interface{}, error) {
		return s.loadGrants(context.WithoutCancel(ctx), consultantID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		grants, _ := res.Val.([]Grant)
		return grants, nil
	}
}

func (s *Service) loadGrants(ctx context.Context, consultantID string) ([]Grant, error) {
	ctx, cancel := context.WithTimeout(ctx, grantLoadTimeout)
	defer cancel()

	// The generation is read before the database so that an invalidation racing
	// this load keeps the result out of the cache.
	gen, genErr := s.cache.Generation(ctx, consultantID)
	if genErr != nil {
		s.logger.Warn("rbac grant cache generation", slog.String("consultant_id", consultantID), slog.Any("error", genErr))
	}
	grants, err := s.repo.ListGrants(ctx, consultantID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return grants, nil
	}
	if err := s.cache.Set(ctx, consultantID, gen, grants); err != nil {
		if errors.Is(err, ErrStaleGrants) {
			s.logger.Debug("rbac grant list invalidated during load", slog.String("consultant_id", consultantID))
		} else {
			s.logger.Warn("rbac grant cache set", slog.String("consultant_id", consultantID), slog.Any("error", err))
		}
	}
	return grants, nil
}

// UpsertGrant stores a grant and drops the consultant's cached list.
func (s *Service) UpsertGrant(ctx context.Context, consultantID string, grant Grant) (Grant, error) {
	consultantID = strings.TrimSpace(consultantID)
	grant.Resource = strings.TrimSpace(grant.Resource)
	if consultantID == "" || grant.Resource == "" {
		return Grant{}, ErrInvalidGrant
	}
	stored, err := s.repo.UpsertGrant(ctx, consultantID, grant)
	if err != nil {
		return Grant{}, err
	}
	s.invalidate(ctx, consultantID)
	return stored, nil
}

// ReplaceGrants overwrites every grant a consultant holds. Later entries for the
// same resource win, matching how GrantSet resolves duplicates.
func (s *Service) ReplaceGrants(ctx context.Context, consultantID string, grants []Grant) ([]Grant, error) {
	consultantID = strings.TrimSpace(consultantID)
	if consultantID == "" {
		return nil, ErrInvalidGrant
	}
	index := make(map[string]int, len(grants))
	normalized := make([]Grant, 0, len(grants))
	for _, g := range grants {
		g.Resource = strings.TrimSpace(g.Resource)
		if g.Resource == "" {
			return nil, ErrInvalidGrant
		}
		if i, ok := index[g.Resource]; ok {
			normalized[i] = g
			continue
		}
		index[g.Resource] = len(normalized)
		normalized = append(normalized, g)
	}
	stored, err := s.repo.ReplaceGrants(ctx, consultantID, normalized)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, consultantID)
	return stored, nil
}

// RevokeGrant deletes the grant for (consultant, resource).
func (s *Service) RevokeGrant(ctx context.Context, consultantID, resource string) error {
	consultantID = strings.TrimSpace(consultantID)
	resource = strings.TrimSpace(resource)
	if consultantID == "" || resource == "" {
		return ErrInvalidGrant
	}
	rows, err := s.repo.DeleteGrant(ctx, consultantID, resource)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx, consultantID)
	return nil
}

// Authorize resolves grants when the actor needs them and evaluates the decision table.
// A nil actor is denied.
func (s *Service) Authorize(ctx context.Context, actor *Actor, resource string, action Action) (bool, error) {
	if actor == nil {
		s.record(RoleVisitor, action, false)
		return false, nil
	}
	var lookup GrantLookup
	if actor.Role == RoleConsultant {
		grants, err := s.Grants(ctx, actor.UserID)
		if err != nil {
			return false, err
		}
		lookup = NewGrantSet(actor.UserID, grants)
	}
	allowed := CanAccessResource(actor.Role, actor.UserID, resource, action, lookup)
	s.record(actor.Role, action, allowed)
	return allowed, nil
}

func (s *Service) invalidate(ctx context.Context, consultantID string) {
	s.loads.Forget(consultantID)
	if err := s.cache.Invalidate(ctx, consultantID); err != nil {
		s.logger.Warn("rbac grant cache invalidate", slog.String("consultant_id", consultantID), slog.Any("error", err))
	}
}

func (s *Service) record(role Role, action Action, allowed bool) {
	if s.recorder == nil {
		return
	}
	label := string(role)
	if !role.Valid() {
		label = "UNKNOWN"
	}
	s.recorder.RecordAuthz(label, action.String(), allowed)
}
