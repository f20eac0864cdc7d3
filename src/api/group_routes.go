package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mitchellh/mapstructure"

	"crewhall/src/lib"
	"crewhall/src/models"
	"crewhall/src/services"
)

const maxActionBodyBytes = 64 << 10

// GroupService is the lifecycle surface the routes drive.
type GroupService interface {
	Create(ctx context.Context, userID string, kind models.GroupKind, name, logoURL string) (services.GroupView, error)
	Join(ctx context.Context, userID string, kind models.GroupKind, inviteCode string) (models.GroupJoinRequest, error)
	ApproveJoin(ctx context.Context, userID string, kind models.GroupKind, requestID string) (models.GroupJoinRequest, error)
	RejectJoin(ctx context.Context, userID string, kind models.GroupKind, requestID string) (models.GroupJoinRequest, error)
	CancelRequest(ctx context.Context, userID string, kind models.GroupKind, groupID string) error
	Leave(ctx context.Context, userID string, kind models.GroupKind) error
	KickMember(ctx context.Context, userID string, kind models.GroupKind, targetUserID string) error
	TransferLeadership(ctx context.Context, userID string, kind models.GroupKind, targetUserID string) (models.Group, error)
	UpdateSettings(ctx context.Context, userID string, kind models.GroupKind, name, motd string) (models.Group, error)
	UpdateLogo(ctx context.Context, userID string, kind models.GroupKind, logoURL string) (models.Group, error)
	Dissolve(ctx context.Context, userID string, kind models.GroupKind) (services.DissolveResult, error)
	Overview(ctx context.Context, userID string, kind models.GroupKind) (services.Overview, error)
}

type GroupRoutes struct {
	Groups  GroupService
	Limiter RateLimiter
	Auth    *Authenticator
	Metrics *lib.Metrics
	Logger  *slog.Logger
}

// actionRequest carries the union of every action's parameters.
type actionRequest struct {
	Action       string `json:"action"`
	Name         string `json:"name"`
	LogoURL      string `json:"logo_url"`
	InviteCode   string `json:"invite_code"`
	RequestID    string `json:"request_id"`
	GroupID      string `json:"group_id"`
	TargetUserID string `json:"target_user_id"`
	MOTD         string `json:"motd"`
}

func RegisterGroupRoutes(mux *http.ServeMux, routes GroupRoutes) {
	for _, kind := range models.Kinds {
		mux.Handle("/api/"+string(kind), routes.Auth.Require(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			routes.handleGroup(w, req, kind)
		})))
	}
}

func (r GroupRoutes) handleGroup(w http.ResponseWriter, req *http.Request, kind models.GroupKind) {
	userID, ok := UserIDFromContext(req.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "unauthenticated", "missing_user", "authentication required")
		return
	}

	switch req.Method {
	case http.MethodGet:
		r.handleOverview(w, req, userID, kind)
	case http.MethodPost:
		r.handleAction(w, req, userID, kind)
	default:
		writeFailure(w, http.StatusMethodNotAllowed, "validation", "method_not_allowed", "method not allowed")
	}
}

func (r GroupRoutes) handleOverview(w http.ResponseWriter, req *http.Request, userID string, kind models.GroupKind) {
	overview, err := r.Groups.Overview(req.Context(), userID, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOK(w, "ok", overview)
}

func (r GroupRoutes) handleAction(w http.ResponseWriter, req *http.Request, userID string, kind models.GroupKind) {
	if r.Limiter != nil {
		allowed, err := r.Limiter.Allow(req.Context(), userID)
		if err != nil {
			r.Logger.Warn("rate limiter unavailable", "error", err)
			allowed = true
		}
		if !allowed {
			r.Metrics.Inc("rate_limited_total")
			writeFailure(w, http.StatusTooManyRequests, "rate_limited", "rate_limited", "too many requests, slow down")
			return
		}
	}

	action, err := decodeAction(w, req)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, string(services.KindValidation), "invalid_payload", "invalid payload")
		return
	}

	ctx := req.Context()
	switch action.Action {
	case "create":
		view, err := r.Groups.Create(ctx, userID, kind, action.Name, action.LogoURL)
		r.respond(w, err, kind.String()+" created", view)
	case "join":
		request, err := r.Groups.Join(ctx, userID, kind, action.InviteCode)
		r.respond(w, err, "join request sent", request)
	case "approve_join":
		request, err := r.Groups.ApproveJoin(ctx, userID, kind, action.RequestID)
		r.respond(w, err, "join request approved", request)
	case "reject_join":
		request, err := r.Groups.RejectJoin(ctx, userID, kind, action.RequestID)
		r.respond(w, err, "join request rejected", request)
	case "cancel_request":
		err := r.Groups.CancelRequest(ctx, userID, kind, action.GroupID)
		r.respond(w, err, "join request cancelled", nil)
	case "leave":
		err := r.Groups.Leave(ctx, userID, kind)
		r.respond(w, err, "you left the "+kind.String(), nil)
	case "kick_member":
		err := r.Groups.KickMember(ctx, userID, kind, action.TargetUserID)
		r.respond(w, err, "member kicked", nil)
	case "transfer_leadership":
		group, err := r.Groups.TransferLeadership(ctx, userID, kind, action.TargetUserID)
		r.respond(w, err, "leadership transferred", group)
	case "update_settings":
		group, err := r.Groups.UpdateSettings(ctx, userID, kind, action.Name, action.MOTD)
		r.respond(w, err, "settings updated", group)
	case "update_logo":
		group, err := r.Groups.UpdateLogo(ctx, userID, kind, action.LogoURL)
		r.respond(w, err, "logo updated", group)
	case "dissolve":
		result, err := r.Groups.Dissolve(ctx, userID, kind)
		r.respond(w, err, kind.String()+" dissolved", result)
	case "":
		writeServiceError(w, services.ErrMissingField.Withf("action is required"))
	default:
		writeServiceError(w, services.ErrUnknownAction.Withf("unknown action %q", action.Action))
	}
}

func (r GroupRoutes) respond(w http.ResponseWriter, err error, message string, data any) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOK(w, message, data)
}

// decodeAction reads the JSON body and maps it onto actionRequest. Scalars
// are weakly typed so numeric ids and codes still decode into strings.
func decodeAction(w http.ResponseWriter, req *http.Request) (actionRequest, error) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxActionBodyBytes)).Decode(&body); err != nil {
		return actionRequest{}, err
	}

	var out actionRequest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return actionRequest{}, err
	}
	if err := dec.Decode(body); err != nil {
		return actionRequest{}, err
	}
	out.Action = strings.ToLower(strings.TrimSpace(out.Action))
	return out, nil
}
