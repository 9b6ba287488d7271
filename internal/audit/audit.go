package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindUser represents an authenticated end-user.
	ActorKindUser ActorKind = "user"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous represents unauthenticated actors.
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID string
	ShopID int64
}

// ActorFromSession builds a user actor from an authenticated session.
func ActorFromSession(s common.Session) Actor {
	if strings.TrimSpace(s.UserID) == "" {
		return Actor{Kind: ActorKindAnonymous}
	}
	return Actor{Kind: ActorKindUser, UserID: s.UserID, ShopID: s.ShopID}
}

// Entry is one row of the audit trail.
type Entry struct {
	ID           int64           `json:"id"`
	ActorKind    string          `json:"actor_kind"`
	ActorUserID  *string         `json:"actor_user_id,omitempty"`
	ShopID       *int64          `json:"shop_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Method       *string         `json:"method,omitempty"`
	Path         *string         `json:"path,omitempty"`
	Route        *string         `json:"route,omitempty"`
	Status       int             `json:"status"`
	IP           *string         `json:"ip,omitempty"`
	UserAgent    *string         `json:"user_agent,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListParams filters and pages audit queries.
type ListParams struct {
	Limit        int
	Offset       int
	ResourceType string
	ResourceID   string
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, e Entry) (int64, error)
	ListAuditLogs(ctx context.Context, p ListParams) ([]Entry, int, error)
}

// Event is a domain-level audit record produced by services.
type Event struct {
	Actor        Actor
	Action       string
	ResourceType string
	ResourceID   string
	Status       int
	Metadata     map[string]any
}

// Service persists audit logs for sale submissions and stock distributions.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// RecordEvent persists a domain event. Request attributes are taken from the
// context when the event happens inside an HTTP request.
func (s *Service) RecordEvent(ctx context.Context, ev Event) error {
	if s == nil || !s.Enabled || s.sampledOut() {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	entry := Entry{
		Action:       strings.TrimSpace(ev.Action),
		ResourceType: strings.TrimSpace(ev.ResourceType),
		ResourceID:   pointerOf(ev.ResourceID),
		Status:       ev.Status,
		Route:        pointerOf(obs.RoutePatternFromContext(ctx)),
		RequestID:    pointerOf(middleware.GetReqID(ctx)),
	}
	applyActor(&entry, ev.Actor)
	if entry.Status == 0 {
		entry.Status = http.StatusOK
	}
	if entry.ResourceType == "" {
		entry.ResourceType = "unknown"
	}
	if len(ev.Metadata) > 0 {
		if data, err := json.Marshal(ev.Metadata); err == nil {
			entry.Metadata = data
		}
	}
	_, err := s.Store.InsertAuditLog(ctx, entry)
	return err
}

// Record persists an audit entry derived from an HTTP request.
func (s *Service) Record(ctx context.Context, actor Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	if s == nil || !s.Enabled || s.sampledOut() {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	method := req.Method
	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	requestID := middleware.GetReqID(req.Context())
	if requestID == "" {
		requestID = req.Header.Get(middleware.RequestIDHeader)
	}

	entry := Entry{
		Action:       buildAction(action, method, route),
		ResourceType: buildResource(resourceType, route),
		ResourceID:   pointerOf(resourceID),
		Method:       pointerOf(method),
		Path:         pointerOf(req.URL.Path),
		Route:        pointerOf(route),
		Status:       status,
		IP:           pointerOf(common.ClientIP(req)),
		UserAgent:    pointerOf(req.Header.Get("User-Agent")),
		RequestID:    pointerOf(requestID),
		Metadata:     toJSONB(metadata, req.URL.RawQuery),
	}
	applyActor(&entry, actor)
	if entry.Status == 0 {
		entry.Status = http.StatusOK
	}
	_, err := s.Store.InsertAuditLog(ctx, entry)
	return err
}

func (s *Service) sampledOut() bool {
	return s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate
}

func applyActor(entry *Entry, actor Actor) {
	entry.ActorKind = string(normalizeActorKind(actor.Kind))
	entry.ActorUserID = pointerOf(actor.UserID)
	if actor.ShopID > 0 {
		shop := actor.ShopID
		entry.ShopID = &shop
	}
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	base := strings.ToUpper(strings.TrimSpace(method))
	target := route
	if target == "" {
		target = "/"
	}
	return base + " " + target
}

func buildResource(resourceType, route string) string {
	trimmed := strings.TrimSpace(resourceType)
	if trimmed != "" {
		return trimmed
	}
	route = strings.Trim(route, " ")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		return strings.Join(segments[2:], ".")
	}
	return strings.ReplaceAll(strings.Trim(route, "/"), "/", ".")
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindUser, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func pointerOf(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func toJSONB(metadata []byte, query string) []byte {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
