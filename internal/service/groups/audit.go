package groups

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/waferline-labs/waferline-go/internal/platform/auditlog"
)

type AuditInfo struct {
	Actor     string
	RequestID string
	UserAgent string
	IP        net.IP
	Service   string
}

// AppendStatusAudit emits an audit event for an applied status transition.
// Suppressed issue steps leave no trace.
func AppendStatusAudit(ctx context.Context, q auditlog.QueryRower, info AuditInfo, transition StatusTransition) error {
	if q == nil {
		return errors.New("audit queryer is required")
	}
	if strings.TrimSpace(info.Actor) == "" {
		return errors.New("audit actor is required")
	}
	if transition.Suppressed {
		return nil
	}

	resourceType := "stage"
	resourceID := transition.StageID
	if transition.ConditionID != "" {
		resourceType = "condition"
		resourceID = transition.ConditionID
	}
	action := resourceType + ".status_updated"
	if transition.MaterialIssue {
		action = resourceType + ".material_issue"
	}

	_, err := auditlog.Insert(ctx, q, auditlog.Event{
		Actor:        info.Actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    info.RequestID,
		IP:           info.IP,
		UserAgent:    info.UserAgent,
		Payload: map[string]any{
			"service":       strings.TrimSpace(info.Service),
			"group_id":      transition.GroupID,
			"experiment_id": transition.ExperimentID,
			"stage_id":      transition.StageID,
			"from":          string(transition.From),
			"to":            string(transition.To),
		},
	})
	return err
}

// AppendVpoAudit emits an audit event for a VPO callback, including the
// failed ones the reconciler deliberately does not apply.
func AppendVpoAudit(ctx context.Context, q auditlog.QueryRower, info AuditInfo, update VpoUpdate, resolution VpoResolution) error {
	if q == nil {
		return errors.New("audit queryer is required")
	}
	if strings.TrimSpace(info.Actor) == "" {
		return errors.New("audit actor is required")
	}

	action := "experiment.vpo_assigned"
	if !resolution.Applied {
		action = "experiment.vpo_failed"
	}

	_, err := auditlog.Insert(ctx, q, auditlog.Event{
		Actor:        info.Actor,
		Action:       action,
		ResourceType: "experiment",
		ResourceID:   resolution.ExperimentID,
		RequestID:    info.RequestID,
		IP:           info.IP,
		UserAgent:    info.UserAgent,
		Payload: map[string]any{
			"service":       strings.TrimSpace(info.Service),
			"group_id":      resolution.GroupID,
			"experiment_id": resolution.ExperimentID,
			"state":         string(resolution.State),
			"vpo":           resolution.Vpo,
			"error_message": strings.TrimSpace(update.ErrorMessage),
		},
	})
	return err
}
