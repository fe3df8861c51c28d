package services

import (
	"board-lab/domain"
	"board-lab/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const sessionIDRule = "required,max=128,excludesall=/"

func validateSessionID(sessionID string) error {
	if err := validate.Var(sessionID, sessionIDRule); err != nil {
		return fmt.Errorf("%w: session id: %v", errors.ErrInvalidInput, err)
	}
	return nil
}

func validateUID(uid string) error {
	if err := validate.Var(uid, "required,max=128,excludesall=/"); err != nil {
		return fmt.Errorf("%w: user id: %v", errors.ErrInvalidInput, err)
	}
	return nil
}

func validateUser(sessionID string, user domain.User) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := validate.Struct(user); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return nil
}

func validateDraft(sessionID string, draft domain.ChatDraft) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := validate.Struct(draft); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return nil
}

func validateDelta(sessionID string, delta domain.CanvasDelta) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if delta.Changes() != 1 {
		return errors.ErrInvalidDelta
	}
	if delta.PatchSettings != nil && delta.PatchSettings.Empty() {
		return errors.ErrInvalidDelta
	}
	if err := validate.Struct(delta); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return nil
}
