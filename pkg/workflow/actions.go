package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/dealflow/pkg/catalog"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

const actionHashNamespace = "dealflow/entry-action/v1"

// ActionHash is the idempotency key of one entry action for one entry of a
// deal into a status. seq is the deal's transition sequence after entering.
func ActionHash(dealID, status string, seq int64, actionKey string) string {
	hash := sha256.New()

	for i, part := range []string{actionHashNamespace, dealID, status, strconv.FormatInt(seq, 10), actionKey} {
		if i > 0 {
			hash.Write([]byte{0})
		}

		hash.Write([]byte(part))
	}

	return hex.EncodeToString(hash.Sum(nil))
}

// ActionOutcome reports what one entry action did.
type ActionOutcome struct {
	Type     template.ActionType `json:"type"`
	Key      string              `json:"key"`
	Hash     string              `json:"hash"`
	Inserted bool                `json:"inserted"`
	Error    string              `json:"error,omitempty"`
}

type actor struct {
	Role string
	ID   string
}

// executeEntryActions runs the entry actions of status for deal in declaration
// order. A failing action is logged and reported; the remaining ones still run.
func (s *Service) executeEntryActions(
	ctx context.Context,
	deal *models.Deal,
	cat *catalog.Catalog,
	status *template.Status,
	versionID string,
	by actor,
) []ActionOutcome {
	outcomes := make([]ActionOutcome, 0, len(status.EntryActions))
	now := s.now()

	for _, action := range status.EntryActions {
		outcome := ActionOutcome{
			Type: action.Type(),
			Key:  action.Key(),
			Hash: ActionHash(deal.ID, status.Key, deal.TransitionSeq, action.Key()),
		}

		ctx, span := otelhelper.StartSpan(ctx, s.tracer, "workflow.entry_action",
			attribute.String(otelhelper.DealIDKey, deal.ID),
			attribute.String(otelhelper.ActionTypeKey, string(action.Type())),
		)

		inserted, err := s.executeAction(ctx, deal, cat, status, action, outcome.Hash, now)
		if err != nil {
			otelhelper.SetError(span, err)
			s.logger.ErrorContext(ctx, "Entry action failed",
				"deal_id", deal.ID,
				"status", status.Key,
				"action", outcome.Key,
				"error", err,
			)

			outcome.Error = err.Error()
		}

		span.End()

		outcome.Inserted = inserted
		outcomes = append(outcomes, outcome)

		if !inserted {
			continue
		}

		auditErr := s.persistence.AuditLogger().LogAction(ctx, &models.AuditEntry{
			DealID:            deal.ID,
			ActorID:           by.ID,
			ActorRole:         by.Role,
			ToStatus:          status.Key,
			WorkflowVersionID: versionID,
			Context: map[string]any{
				"action_type": string(outcome.Type),
				"action_key":  outcome.Key,
				"action_hash": outcome.Hash,
			},
		})
		if auditErr != nil {
			s.logger.WarnContext(ctx, "Failed to audit entry action", "deal_id", deal.ID, "action", outcome.Key, "error", auditErr)
		}
	}

	return outcomes
}

func (s *Service) executeAction(
	ctx context.Context,
	deal *models.Deal,
	cat *catalog.Catalog,
	status *template.Status,
	action template.EntryAction,
	hash string,
	now time.Time,
) (bool, error) {
	tmpl := cat.Template()

	switch a := action.(type) {
	case *template.TaskCreateAction:
		return s.persistence.TaskRepository().InsertIfAbsent(ctx, newTask(deal, status, a.Task, hash, now))

	case *template.NotifyAction:
		text := tmpl.Notifications.Templates[a.Template]
		if text == "" {
			text = a.Template
		}

		message, err := template.Render(text, renderData(deal, cat, status, a.ToRoles))
		if err != nil {
			return false, fmt.Errorf("failed to render notification %s: %w", a.Template, err)
		}

		return s.persistence.QueueRepository().Enqueue(ctx, &models.QueueEntry{
			Queue:   models.QueueNotifications,
			DealID:  deal.ID,
			Kind:    string(a.ActionType),
			Target:  a.Template,
			ToRoles: a.ToRoles,
			Payload: map[string]any{
				"message":      message,
				"status":       status.Key,
				"status_title": status.Title,
				"channels":     tmpl.Notifications.Channels,
			},
			ActionHash: hash,
		})

	case *template.WebhookAction:
		return s.persistence.QueueRepository().Enqueue(ctx, &models.QueueEntry{
			Queue:  models.QueueWebhooks,
			DealID: deal.ID,
			Kind:   string(template.ActionWebhook),
			Target: tmpl.Integrations.ResolveWebhook(a.Endpoint),
			Payload: models.MergePayload(a.Payload, map[string]any{
				"deal_id":     deal.ID,
				"workflow_id": deal.WorkflowID,
				"status":      status.Key,
				"endpoint":    a.Endpoint,
			}),
			ActionHash: hash,
		})

	case *template.ScheduleAction:
		dueAt := a.Job.DueAt(now, tmpl.Location())

		return s.persistence.QueueRepository().Enqueue(ctx, &models.QueueEntry{
			Queue:  models.QueueSchedules,
			DealID: deal.ID,
			Kind:   a.Job.Type,
			Target: a.Job.Template,
			Cron:   a.Job.Cron,
			DueAt:  &dueAt,
			Payload: models.MergePayload(a.Job.Payload, map[string]any{
				"deal_id":  deal.ID,
				"status":   status.Key,
				"timezone": tmpl.Workflow.Timezone,
			}),
			ActionHash: hash,
		})

	default:
		return false, fmt.Errorf("unsupported entry action %T", action)
	}
}

func newTask(deal *models.Deal, status *template.Status, definition template.TaskDefinition, hash string, now time.Time) *models.Task {
	payload := map[string]any{
		"title":             definition.Title,
		"template_id":       definition.TemplateID,
		"guard_key":         taskGuardKey(definition),
		"status_key":        status.Key,
		"status_title":      status.Title,
		"requires_document": definition.RequiresDocument,
	}

	if len(definition.Defaults) > 0 {
		payload["defaults"] = models.ClonePayload(definition.Defaults)
	}

	if len(definition.Bindings) > 0 {
		bindings := make(map[string]any, len(definition.Bindings))
		for field, path := range definition.Bindings {
			bindings[field] = path
		}

		payload["bindings"] = bindings
	}

	task := &models.Task{
		DealID:       deal.ID,
		Type:         definition.Type,
		Status:       models.TaskStatusOpen,
		AssigneeRole: definition.AssigneeRole,
		Payload:      payload,
		ActionHash:   hash,
	}

	if definition.SLA != nil && definition.SLA.Hours > 0 {
		due := now.Add(time.Duration(definition.SLA.Hours) * time.Hour)
		task.SLADueAt = &due
	}

	return task
}

// renderData is the data notification templates are executed against.
func renderData(deal *models.Deal, cat *catalog.Catalog, status *template.Status, roles []string) map[string]any {
	labels := make([]string, 0, len(roles))
	for _, role := range roles {
		labels = append(labels, cat.RoleLabel(role))
	}

	return map[string]any{
		"deal_id":      deal.ID,
		"workflow_id":  deal.WorkflowID,
		"status":       status.Key,
		"status_title": status.Title,
		"roles":        roles,
		"role_labels":  labels,
		"payload":      deal.Payload,
	}
}
