// Package validation checks inbound API documents before they reach the core.
// Handlers call these helpers and translate the returned errors; components
// below the HTTP layer can assume validated input.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/KainCH/omniasylum-sub001/pkg/api/warden"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

var validate = validator.New()

type bindRequestRules struct {
	Username     string `validate:"required,max=128"`
	AccessToken  string `validate:"required"`
	RefreshToken string `validate:"required"`
	ExpiresIn    int    `validate:"gt=0"`
}

// ValidateBindRequest checks a credential bind document.
func ValidateBindRequest(req *warden.BindRequest) error {
	rules := bindRequestRules{
		Username:     strings.TrimSpace(req.Username),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresIn:    req.ExpiresIn,
	}
	if err := validate.Struct(rules); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidInput, firstViolation(err))
	}
	return nil
}

// ValidateAlertRequest checks an alert create/update document.
func ValidateAlertRequest(req *warden.AlertRequest) error {
	if !models.ValidAlertType(req.Type) {
		return fmt.Errorf("%w: unknown alert type %q", models.ErrInvalidInput, req.Type)
	}
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: alert name is required", models.ErrInvalidInput)
	}
	if req.DurationMs < models.MinAlertDurationMs || req.DurationMs > models.MaxAlertDurationMs {
		return fmt.Errorf("%w: durationMs %d outside [%d, %d]",
			models.ErrInvalidInput, req.DurationMs, models.MinAlertDurationMs, models.MaxAlertDurationMs)
	}
	return nil
}

// ValidateEventMapping checks an event-to-alert mapping replacement. Every key
// must be a known normalized event kind; values are alert ids or "none".
func ValidateEventMapping(mappings map[string]string) error {
	if mappings == nil {
		return fmt.Errorf("%w: mappings object is required", models.ErrInvalidInput)
	}
	for event, alertID := range mappings {
		if !models.KnownEventKind(models.EventKind(event)) {
			return fmt.Errorf("%w: unknown event name %q", models.ErrInvalidInput, event)
		}
		if strings.TrimSpace(alertID) == "" {
			return fmt.Errorf("%w: empty alert id for event %q (use %q to disable)",
				models.ErrInvalidInput, event, models.MappingNone)
		}
	}
	return nil
}

// ValidateBotToggle checks the chat bot toggle action.
func ValidateBotToggle(action string) error {
	switch action {
	case "start", "stop":
		return nil
	}
	return fmt.Errorf("%w: action must be \"start\" or \"stop\"", models.ErrInvalidInput)
}

func firstViolation(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Sprintf("field %s failed %s validation", f.Field(), f.Tag())
	}
	return err.Error()
}
