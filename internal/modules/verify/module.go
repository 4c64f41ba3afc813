package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crowdmod/internal/config"

	"go.uber.org/zap"
)

const (
	customIDPrefix = "dynamic_verify"
	ActionAccept   = "accept"
	ActionDecline  = "decline"
)

var (
	ErrUnknownRule       = errors.New("unknown verification rule")
	ErrMalformedCustomID = errors.New("malformed verification custom id")
	ErrNoRequestChannel  = errors.New("verification request channel not configured")
)

// Request is an access request waiting for a staff decision.
type Request struct {
	RuleID   string
	RuleName string
	UserID   string
}

// Gateway is the subset of the chat platform the workflow needs.
type Gateway interface {
	PostRequest(ctx context.Context, channelID string, req Request, acceptID, declineID string) error
	GrantRole(ctx context.Context, guildID, userID, roleID string) error
	DirectMessage(ctx context.Context, userID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

type Module struct {
	cfg     config.VerifyConfig
	rules   map[string]config.VerifyRule
	gateway Gateway
	logger  *zap.Logger
}

func New(cfg config.VerifyConfig, gateway Gateway, logger *zap.Logger) *Module {
	rules := make(map[string]config.VerifyRule, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		rules[rule.ID] = rule
	}
	return &Module{cfg: cfg, rules: rules, gateway: gateway, logger: logger}
}

func (m *Module) Rules() []config.VerifyRule {
	return m.cfg.Rules
}

func (m *Module) RequestAccess(ctx context.Context, ruleID, userID string) error {
	rule, ok := m.rules[ruleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, ruleID)
	}
	if m.cfg.RequestChannel == "" {
		return ErrNoRequestChannel
	}
	req := Request{RuleID: rule.ID, RuleName: rule.Name, UserID: userID}
	return m.gateway.PostRequest(ctx, m.cfg.RequestChannel, req, CustomID(ActionAccept, rule.ID, userID), CustomID(ActionDecline, rule.ID, userID))
}

// Accept grants every role of the rule and notifies the user. The caller is
// responsible for removing the buttons from the request message.
func (m *Module) Accept(ctx context.Context, guildID, ruleID, userID string) error {
	rule, ok := m.rules[ruleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, ruleID)
	}
	for _, roleID := range rule.Roles {
		if err := m.gateway.GrantRole(ctx, guildID, userID, roleID); err != nil {
			return fmt.Errorf("grant role %s: %w", roleID, err)
		}
	}
	m.logger.Info("verification accepted", zap.String("rule", ruleID), zap.String("user_id", userID))
	if m.cfg.AcceptedMessage != "" {
		if err := m.gateway.DirectMessage(ctx, userID, m.cfg.AcceptedMessage); err != nil {
			m.logger.Debug("accepted dm failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// Decline removes the request and tells the user. DM failures are ignored.
func (m *Module) Decline(ctx context.Context, channelID, messageID, userID string) error {
	if err := m.gateway.DeleteMessage(ctx, channelID, messageID); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	m.logger.Info("verification declined", zap.String("user_id", userID))
	if m.cfg.DeclinedMessage != "" {
		if err := m.gateway.DirectMessage(ctx, userID, m.cfg.DeclinedMessage); err != nil {
			m.logger.Debug("declined dm failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

func CustomID(action, ruleID, userID string) string {
	return strings.Join([]string{customIDPrefix, action, ruleID, userID}, ":")
}

func IsCustomID(customID string) bool {
	return strings.HasPrefix(customID, customIDPrefix+":")
}

func ParseCustomID(customID string) (action, ruleID, userID string, err error) {
	parts := strings.Split(customID, ":")
	if len(parts) != 4 || parts[0] != customIDPrefix {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedCustomID, customID)
	}
	if parts[1] != ActionAccept && parts[1] != ActionDecline {
		return "", "", "", fmt.Errorf("%w: action %q", ErrMalformedCustomID, parts[1])
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedCustomID, customID)
	}
	return parts[1], parts[2], parts[3], nil
}
