package engine

import (
	"chatrelay/config"
	"chatrelay/storage"
)

// AvailabilityController applies spec's five state-transition rules on
// credentials, generalizing the teacher's in-memory ApiKeyStatus.RecordFailure
// / RecordSuccessOrReactivate married to its persisted KeyStore counterparts.
type AvailabilityController struct {
	store    *storage.CredentialStore
	selector *KeySelector
}

func NewAvailabilityController(store *storage.CredentialStore, selector *KeySelector) *AvailabilityController {
	return &AvailabilityController{store: store, selector: selector}
}

// OnSuccess clears error state. If the credential was previously
// status=error, it is also restored to available and the Selector is
// notified to refresh.
func (ac *AvailabilityController) OnSuccess(cred *storage.Credential) error {
	wasError := cred.Status == storage.StatusError
	if err := ac.store.SetStatus(cred.ID, storage.StatusActive, ""); err != nil {
		return err
	}
	if wasError {
		if err := ac.store.SetAvailability(cred.ID, true); err != nil {
			return err
		}
		ac.selector.Notify()
	}
	return nil
}

// OnFailure increments error_count and records last_error, setting
// status=error unless a more specific status (insufficient) already
// applies and is about to be reasserted by ApplyBalanceRule.
func (ac *AvailabilityController) OnFailure(cred *storage.Credential, errMsg string) error {
	status := storage.StatusError
	if cred.Status == storage.StatusInsufficient {
		status = storage.StatusInsufficient
	}
	return ac.store.SetStatus(cred.ID, status, errMsg)
}

// ApplyBalanceRule demotes a credential to insufficient/unavailable when a
// follow-up balance probe reports balance < 1.0. A nil (unknown) balance
// never demotes on its own.
func (ac *AvailabilityController) ApplyBalanceRule(cred *storage.Credential, balance *float64) error {
	if err := ac.store.SetBalance(cred.ID, balance); err != nil {
		return err
	}
	if balance == nil {
		return nil
	}
	if *balance < config.InsufficientBalanceThreshold {
		if err := ac.store.SetStatus(cred.ID, storage.StatusInsufficient, ""); err != nil {
			return err
		}
		if err := ac.store.SetAvailability(cred.ID, false); err != nil {
			return err
		}
		ac.selector.Notify()
	}
	return nil
}

// Reevaluate applies the periodic re-check rule: a credential becomes
// unavailable if error_count >= 3 and known balance < 1.0; a status=error
// credential becomes available again if either condition fails. Called
// after a balance probe has been applied (the Engine's failure path and the
// auto balance probe), never on a timer.
func (ac *AvailabilityController) Reevaluate(id uint) error {
	cred, err := ac.store.Get(id)
	if err != nil {
		return err
	}
	lowBalance := cred.Balance != nil && *cred.Balance < config.InsufficientBalanceThreshold
	shouldBeUnavailable := cred.ErrorCount >= config.ErrorCountUnavailableThreshold && lowBalance

	switch {
	case shouldBeUnavailable && cred.Availability:
		if err := ac.store.SetAvailability(id, false); err != nil {
			return err
		}
		ac.selector.Notify()
	case !shouldBeUnavailable && !cred.Availability && cred.Status == storage.StatusError:
		if err := ac.store.SetAvailability(id, true); err != nil {
			return err
		}
		ac.selector.Notify()
	}
	return nil
}

// ManualToggleAvailability is the admin "toggle availability" operation: on
// a status=error credential it resets status=active and sets available.
func (ac *AvailabilityController) ManualToggleAvailability(id uint) error {
	cred, err := ac.store.Get(id)
	if err != nil {
		return err
	}
	if cred.Status == storage.StatusError {
		if err := ac.store.SetStatus(id, storage.StatusActive, ""); err != nil {
			return err
		}
	}
	if err := ac.store.SetAvailability(id, true); err != nil {
		return err
	}
	ac.selector.Notify()
	return nil
}
