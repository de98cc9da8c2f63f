package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

// GrantPermission allows user to respond to a private survey. Creator only.
func (c *SurveyXContract) GrantPermission(ctx contractapi.TransactionContextInterface, surveyID uint64, user string) error {
	if _, _, err := requireCreator(ctx, surveyID); err != nil {
		return err
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("%w: address empty", ErrInvalidInput)
	}
	if err := ctx.GetStub().PutState(permKey(surveyID, user), []byte("1")); err != nil {
		return err
	}
	p, err := getParams(ctx)
	if err != nil {
		return err
	}
	emit(ctx, p, eventPermissionGranted, map[string]any{"surveyId": surveyID, "count": 1})
	return nil
}

// GrantPermissions grants every address in transient["addresses"] (JSON
// array of client ids) in one transaction and returns how many were written.
// Creator only. The transient map keeps the respondent list out of the
// transaction proposal that is broadcast to the channel.
func (c *SurveyXContract) GrantPermissions(ctx contractapi.TransactionContextInterface, surveyID uint64) (int, error) {
	if _, _, err := requireCreator(ctx, surveyID); err != nil {
		return 0, err
	}
	tm, err := ctx.GetStub().GetTransient()
	if err != nil {
		return 0, fmt.Errorf("get transient: %w", err)
	}
	raw, ok := tm["addresses"]
	if !ok || len(raw) == 0 {
		return 0, errors.New("transient[addresses] missing")
	}
	var users []string
	if err := json.Unmarshal(raw, &users); err != nil {
		return 0, fmt.Errorf("decode addresses: %w", err)
	}
	// Check the whole batch before writing any of it.
	seen := make(map[string]struct{}, len(users))
	clean := make([]string, 0, len(users))
	for i, u := range users {
		u = strings.TrimSpace(u)
		if u == "" {
			return 0, fmt.Errorf("%w: address %d empty", ErrInvalidInput, i)
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		clean = append(clean, u)
	}
	for _, u := range clean {
		if err := ctx.GetStub().PutState(permKey(surveyID, u), []byte("1")); err != nil {
			return 0, fmt.Errorf("put permission: %w", err)
		}
	}
	p, err := getParams(ctx)
	if err != nil {
		return 0, err
	}
	emit(ctx, p, eventPermissionGranted, map[string]any{"surveyId": surveyID, "count": len(clean)})
	return len(clean), nil
}

// RevokePermission removes a grant. Creator only; revoking a missing grant is a no-op.
func (c *SurveyXContract) RevokePermission(ctx contractapi.TransactionContextInterface, surveyID uint64, user string) error {
	if _, _, err := requireCreator(ctx, surveyID); err != nil {
		return err
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("%w: address empty", ErrInvalidInput)
	}
	if err := ctx.GetStub().DelState(permKey(surveyID, user)); err != nil {
		return err
	}
	p, err := getParams(ctx)
	if err != nil {
		return err
	}
	emit(ctx, p, eventPermissionRevoked, map[string]any{"surveyId": surveyID})
	return nil
}

// HasPermission reports whether user holds an explicit grant on the survey.
func (c *SurveyXContract) HasPermission(ctx contractapi.TransactionContextInterface, surveyID uint64, user string) (bool, error) {
	return hasGrant(ctx, surveyID, strings.TrimSpace(user))
}

// HasAccess reports whether user may respond: the survey is public, user is
// its creator, or user holds a grant. Unknown surveys read as false.
func (c *SurveyXContract) HasAccess(ctx contractapi.TransactionContextInterface, surveyID uint64, user string) (bool, error) {
	s, err := loadSurvey(ctx, surveyID)
	if errors.Is(err, ErrSurveyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return hasAccess(ctx, s, strings.TrimSpace(user))
}

func hasGrant(ctx contractapi.TransactionContextInterface, surveyID uint64, user string) (bool, error) {
	raw, err := ctx.GetStub().GetState(permKey(surveyID, user))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func hasAccess(ctx contractapi.TransactionContextInterface, s *Survey, user string) (bool, error) {
	if s.IsPublic || s.Creator == user {
		return true, nil
	}
	return hasGrant(ctx, s.ID, user)
}
