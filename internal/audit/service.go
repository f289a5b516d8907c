package audit

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-pos/internal/common"
)

// Entry is one recorded operator action.
type Entry struct {
	ID           string         `json:"id,omitempty"`
	At           time.Time      `json:"at"`
	OperatorID   string         `json:"operatorId,omitempty"`
	OperatorName string         `json:"operatorName,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Method       string         `json:"method"`
	Path         string         `json:"path"`
	Status       int            `json:"status"`
	IP           string         `json:"ip,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Store persists audit entries, newest last.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Service records operator actions on the till. A disabled or unconfigured
// service records nothing.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// Record stores an entry describing req and its outcome.
func (s *Service) Record(ctx context.Context, action, resourceType, resourceID string, req *http.Request, status int, metadata map[string]any) error {
	if s == nil || !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := routePattern(req)
	if status == 0 {
		status = http.StatusOK
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	e := Entry{
		At:           now.UTC(),
		Action:       buildAction(action, req.Method, route),
		ResourceType: buildResource(resourceType, route),
		ResourceID:   strings.TrimSpace(resourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Status:       status,
		IP:           common.ClientIP(req),
		RequestID:    strings.TrimSpace(req.Header.Get("X-Request-ID")),
		Metadata:     metadata,
	}
	if op, ok := common.OperatorFrom(ctx); ok {
		e.OperatorID = op.ID
		e.OperatorName = op.Name
	}
	if e.Metadata == nil && strings.TrimSpace(req.URL.RawQuery) != "" {
		e.Metadata = map[string]any{"query": req.URL.RawQuery}
	}
	if err := s.Store.Insert(ctx, e); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Debug().Str("action", e.Action).Str("operator_id", e.OperatorID).Int("status", e.Status).Msg("audit_recorded")
	}
	return nil
}

// Recent returns the newest entries.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("audit: store not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.Store.Recent(ctx, limit)
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

// buildResource derives a dotted resource name from the route, dropping the
// API prefix and path parameters: /api/v1/carts/{id}/items -> carts.items.
func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	route = strings.Trim(strings.TrimSpace(route), "/")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(route, "/")
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" || seg == "*" || strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}
