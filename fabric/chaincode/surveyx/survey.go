package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"github.com/yourorg/surveyx_cc/fhe"
	"github.com/yourorg/surveyx_cc/log"
)

/* Contract administration */

// InitLedger records the caller as contract owner. It runs once per channel.
func (c *SurveyXContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	cur, err := ctx.GetStub().GetState(keyOwner)
	if err != nil {
		return err
	}
	if cur != nil {
		return ErrAlreadyInitialised
	}
	if err := ctx.GetStub().PutState(keyOwner, []byte(caller)); err != nil {
		return err
	}
	p, err := getParams(ctx)
	if err != nil {
		return err
	}
	emit(ctx, p, eventInitialised, map[string]any{"owner": caller})
	return nil
}

// GetOwner returns the client id recorded by InitLedger.
func (c *SurveyXContract) GetOwner(ctx contractapi.TransactionContextInterface) (string, error) {
	raw, err := ctx.GetStub().GetState(keyOwner)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", ErrNotInitialised
	}
	return string(raw), nil
}

func requireOwner(ctx contractapi.TransactionContextInterface) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	raw, err := ctx.GetStub().GetState(keyOwner)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotInitialised
	}
	if string(raw) != caller {
		return ErrNotOwner
	}
	return nil
}

// SetParams merges paramsJSON into the stored runtime parameters. Owner only.
func (c *SurveyXContract) SetParams(ctx contractapi.TransactionContextInterface, paramsJSON string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}
	cur, err := getParams(ctx)
	if err != nil {
		return err
	}

	jsCur, _ := json.Marshal(cur)
	var merged map[string]any
	_ = json.Unmarshal(jsCur, &merged)

	var upd map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &upd); err != nil {
		return fmt.Errorf("bad params json: %w", err)
	}
	for k, v := range upd {
		merged[k] = v
	}

	js, _ := json.Marshal(merged)
	next := defaultParams()
	if err := json.Unmarshal(js, next); err != nil {
		return fmt.Errorf("%w: params: %v", ErrInvalidInput, err)
	}
	if next.MaxOptions < 1 || next.MaxRating < 1 {
		return fmt.Errorf("%w: MAX_OPTIONS and MAX_RATING must be positive", ErrInvalidInput)
	}
	if next.InputVerifierKey != "" {
		if _, err := fhe.ParseVerifierKey(next.InputVerifierKey); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	js = mustJSON(next)
	if err := ctx.GetStub().PutState(keyParams, js); err != nil {
		return err
	}

	keys := make([]string, 0, len(upd))
	for k := range upd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	emit(ctx, next, eventParamsUpdated, map[string]any{
		"hash": sha256Hex(js),
		"keys": keys,
	})
	return nil
}

// GetParams reads back the stored runtime parameters.
func (c *SurveyXContract) GetParams(ctx contractapi.TransactionContextInterface) (*Params, error) {
	return getParams(ctx)
}

/* Surveys */

// CreateSurvey registers a new inactive survey owned by the caller and
// returns its id. Ids start at 1 and are never reused.
func (c *SurveyXContract) CreateSurvey(
	ctx contractapi.TransactionContextInterface,
	title string,
	description string,
	durationSeconds int64,
	isPublic bool,
) (uint64, error) {
	in := surveyInput{
		Title:           strings.TrimSpace(title),
		Description:     description,
		DurationSeconds: durationSeconds,
	}
	if err := validateInput(in); err != nil {
		return 0, err
	}
	caller, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	now, err := txUnix(ctx)
	if err != nil {
		return 0, err
	}

	id, err := nextID(ctx, counterSurvey)
	if err != nil {
		return 0, err
	}
	s := &Survey{
		ID:          id,
		Creator:     caller,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   now,
		ExpiresAt:   now + durationSeconds,
		IsPublic:    isPublic,
	}
	if err := putJSON(ctx, idKey(keySurveyPrefix, id), s); err != nil {
		return 0, err
	}
	if err := appendID(ctx, keyUserSurveys+caller, id); err != nil {
		return 0, err
	}
	if isPublic {
		if err := appendID(ctx, keyPublicSurveys, id); err != nil {
			return 0, err
		}
	}

	p, err := getParams(ctx)
	if err != nil {
		return 0, err
	}
	emit(ctx, p, eventSurveyCreated, map[string]any{
		"surveyId":  id,
		"creator":   caller,
		"title":     s.Title,
		"expiresAt": s.ExpiresAt,
		"isPublic":  isPublic,
	})
	log.With(log.Fields{"tx": ctx.GetStub().GetTxID(), "survey": id}).Debug("survey created")
	return id, nil
}

// ActivateSurvey opens the survey for responses. Creator only; idempotent.
func (c *SurveyXContract) ActivateSurvey(ctx contractapi.TransactionContextInterface, surveyID uint64) error {
	return c.setActive(ctx, surveyID, true)
}

// DeactivateSurvey closes the survey for responses. Creator only; idempotent.
func (c *SurveyXContract) DeactivateSurvey(ctx contractapi.TransactionContextInterface, surveyID uint64) error {
	return c.setActive(ctx, surveyID, false)
}

func (c *SurveyXContract) setActive(ctx contractapi.TransactionContextInterface, surveyID uint64, active bool) error {
	s, _, err := requireCreator(ctx, surveyID)
	if err != nil {
		return err
	}
	s.IsActive = active
	if err := putJSON(ctx, idKey(keySurveyPrefix, surveyID), s); err != nil {
		return err
	}
	p, err := getParams(ctx)
	if err != nil {
		return err
	}
	name := eventSurveyDeactivated
	if active {
		name = eventSurveyActivated
	}
	emit(ctx, p, name, map[string]any{"surveyId": surveyID})
	return nil
}

// SetSurveyKey registers the BGV public key respondents encrypt to.
// Creator only. The key is frozen once the survey has a response, since the
// accumulator is bound to it.
func (c *SurveyXContract) SetSurveyKey(ctx contractapi.TransactionContextInterface, surveyID uint64, keyJSON string) error {
	s, _, err := requireCreator(ctx, surveyID)
	if err != nil {
		return err
	}
	if s.ResponseCount > 0 {
		return ErrKeyLocked
	}
	k, err := fhe.ParseSurveyKey(keyJSON)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := putJSON(ctx, idKey(keySurveyKeyPfx, surveyID), k); err != nil {
		return err
	}
	s.HasKey = true
	if err := putJSON(ctx, idKey(keySurveyPrefix, surveyID), s); err != nil {
		return err
	}
	p, err := getParams(ctx)
	if err != nil {
		return err
	}
	emit(ctx, p, eventSurveyKeySet, map[string]any{
		"surveyId": surveyID,
		"digest":   k.Digest,
		"logN":     k.Params.LogN,
	})
	return nil
}

// GetSurveyKey returns the registered public key of a survey.
func (c *SurveyXContract) GetSurveyKey(ctx contractapi.TransactionContextInterface, surveyID uint64) (*fhe.SurveyKey, error) {
	if _, err := loadSurvey(ctx, surveyID); err != nil {
		return nil, err
	}
	return loadSurveyKey(ctx, surveyID)
}

func loadSurveyKey(ctx contractapi.TransactionContextInterface, surveyID uint64) (*fhe.SurveyKey, error) {
	var k fhe.SurveyKey
	ok, err := getJSON(ctx, idKey(keySurveyKeyPfx, surveyID), &k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrKeyNotSet
	}
	return &k, nil
}

/* Survey getters */

// GetSurvey returns the survey record.
func (c *SurveyXContract) GetSurvey(ctx contractapi.TransactionContextInterface, surveyID uint64) (*Survey, error) {
	return loadSurvey(ctx, surveyID)
}

// GetSurveyCounter returns the number of surveys created so far.
func (c *SurveyXContract) GetSurveyCounter(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return readCounter(ctx, counterSurvey)
}

// GetUserSurveys lists the survey ids created by user, oldest first.
func (c *SurveyXContract) GetUserSurveys(ctx contractapi.TransactionContextInterface, user string) ([]uint64, error) {
	return readIDs(ctx, keyUserSurveys+user)
}

// GetPublicSurveys lists every survey created public, oldest first.
func (c *SurveyXContract) GetPublicSurveys(ctx contractapi.TransactionContextInterface) ([]uint64, error) {
	return readIDs(ctx, keyPublicSurveys)
}

// IsPublicSurvey reports the public flag; unknown surveys read as false.
func (c *SurveyXContract) IsPublicSurvey(ctx contractapi.TransactionContextInterface, surveyID uint64) (bool, error) {
	s, err := loadSurvey(ctx, surveyID)
	if errors.Is(err, ErrSurveyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.IsPublic, nil
}
