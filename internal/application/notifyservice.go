package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
	"github.com/quotawatch/quotawatch/internal/telemetry"
)

// NotifyService evaluates notification rules against new balance
// observations and dispatches alerts with edge-triggered hysteresis:
// a rule fires when the balance crosses its threshold, not on every
// observation that sits beyond it.
type NotifyService struct {
	history driven.HistoryStore
	rules   driven.RuleStore
	senders map[model.Channel]driven.NotificationSender
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewNotifyService creates a NotifyService. senders maps each
// supported channel to its transport; metrics may be nil.
func NewNotifyService(
	history driven.HistoryStore,
	rules driven.RuleStore,
	senders map[model.Channel]driven.NotificationSender,
	metrics *telemetry.Metrics,
) *NotifyService {
	return &NotifyService{
		history: history,
		rules:   rules,
		senders: senders,
		metrics: metrics,
		logger:  slog.Default(),
	}
}

// HandleObservation runs rule evaluation for one successful
// observation. Failed observations carry no balance and are ignored;
// the breach state a rule saw before the failure is preserved because
// hysteresis compares against the previous successful observation.
func (s *NotifyService) HandleObservation(ctx context.Context, cred model.Credential, obs model.BalanceObservation) {
	if obs.Failed() {
		return
	}

	rules, err := s.rules.ListByCredential(ctx, cred.ID)
	if err != nil {
		s.logger.Error("list notification rules failed", "credential_id", cred.ID, "error", err)
		return
	}
	if len(rules) == 0 {
		return
	}

	prev, err := s.history.LatestSuccessBefore(ctx, cred.ID, obs.ID)
	if err != nil {
		s.logger.Error("load previous observation failed", "credential_id", cred.ID, "error", err)
		return
	}

	for i := range rules {
		rule := &rules[i]
		breached := rule.Breached(obs.Balance)
		wasBreached := prev != nil && rule.Breached(prev.Balance)
		// Fire only on the transition into breach. A first-ever
		// observation already in breach counts as a transition.
		if !breached || wasBreached {
			continue
		}

		alert := model.Alert{
			EventID:        uuid.NewString(),
			CredentialID:   cred.ID,
			CredentialName: cred.Name,
			Balance:        obs.Balance,
			IsEstimate:     obs.IsEstimate,
			Threshold:      rule.Threshold,
			Direction:      rule.Direction,
			FiredAt:        obs.ObservedAt,
		}

		s.dispatch(ctx, rule, alert)

		// The rule is marked fired even when delivery fails: alerting
		// is at-least-once on crossing, and a failed send must not
		// re-fire on the next in-breach observation.
		if err := s.rules.MarkFired(ctx, rule.ID, obs.Balance, obs.ObservedAt); err != nil {
			s.logger.Error("mark rule fired failed", "rule_id", rule.ID, "error", err)
		}
	}
}

func (s *NotifyService) dispatch(ctx context.Context, rule *model.NotificationRule, alert model.Alert) {
	sender, ok := s.senders[rule.Channel]
	if !ok {
		s.logger.Error("no sender for channel", "channel", rule.Channel, "rule_id", rule.ID)
		s.metrics.NotificationSent(string(rule.Channel), false)
		return
	}

	err := sender.Send(ctx, rule.Address, alert)
	s.metrics.NotificationSent(string(rule.Channel), err == nil)
	if err != nil {
		s.logger.Error("alert dispatch failed",
			"rule_id", rule.ID,
			"channel", rule.Channel,
			"event_id", alert.EventID,
			"error", err,
		)
		return
	}

	s.logger.Info("alert dispatched",
		"rule_id", rule.ID,
		"channel", rule.Channel,
		"event_id", alert.EventID,
		"credential_id", alert.CredentialID,
		"balance", alert.Balance,
	)
}
