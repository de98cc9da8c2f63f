package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"github.com/yourorg/surveyx_cc/fhe"
	"github.com/yourorg/surveyx_cc/log"
)

/* Responses */

// SubmitResponse records one encrypted answer and folds it into the
// question's accumulator.
//
// Flow:
//  1. Lifecycle and access checks on the survey and question.
//  2. Duplicate check unless ALLOW_RESUBMIT.
//  3. Ciphertext shape check against the survey key and input attestation.
//  4. Homomorphic add into STATS::<questionId>; public Response metadata,
//     private ciphertext + proof into responses_pdc.
func (c *SurveyXContract) SubmitResponse(
	ctx contractapi.TransactionContextInterface,
	surveyID uint64,
	questionID uint64,
	encryptedHandle string,
	proof string,
) (*Receipt, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	now, err := txUnix(ctx)
	if err != nil {
		return nil, err
	}

	s, err := loadSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive {
		return nil, ErrSurveyInactive
	}
	if now >= s.ExpiresAt {
		return nil, ErrSurveyExpired
	}
	ok, err := hasAccess(ctx, s, caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoAccess
	}
	q, err := loadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.SurveyID != surveyID {
		return nil, ErrQuestionMismatch
	}

	p, err := getParams(ctx)
	if err != nil {
		return nil, err
	}
	if !p.AllowResubmit {
		prev, err := ctx.GetStub().GetState(answeredKey(questionID, caller))
		if err != nil {
			return nil, err
		}
		if prev != nil {
			return nil, ErrAlreadyResponded
		}
	}

	sk, err := loadSurveyKey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	params, err := sk.Params.Build()
	if err != nil {
		return nil, fmt.Errorf("survey key params: %w", err)
	}

	// Cheap checks first: decode and attestation before any homomorphic work.
	ct, err := fhe.DecodeB64(encryptedHandle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if p.RequireInputProof {
		if p.InputVerifierKey == "" {
			return nil, ErrVerifierNotSet
		}
		digest := fhe.InputDigest(surveyID, questionID, caller, ct)
		if err := fhe.VerifyInput(p.InputVerifierKey, digest, proof); err != nil {
			log.Warnf("tx %s: input proof rejected for survey %d question %d: %v", ctx.GetStub().GetTxID(), surveyID, questionID, err)
			return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
	}

	stats, err := loadStats(ctx, surveyID, questionID)
	if err != nil {
		return nil, err
	}
	var acc []byte
	if stats.Ciphertext != "" {
		if acc, err = base64.StdEncoding.DecodeString(stats.Ciphertext); err != nil {
			return nil, fmt.Errorf("stats ciphertext corrupt: %w", err)
		}
	}
	sum, err := fhe.Add(params, acc, ct)
	if err != nil {
		log.Warnf("tx %s: ciphertext rejected for survey %d question %d: %v", ctx.GetStub().GetTxID(), surveyID, questionID, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	stats.Ciphertext = base64.StdEncoding.EncodeToString(sum)
	stats.Handle = fhe.Handle(sum)
	stats.Responses++
	stats.UpdatedAt = now
	if err := putJSON(ctx, idKey(keyStatsPrefix, questionID), stats); err != nil {
		return nil, err
	}

	id, err := nextID(ctx, counterResponse)
	if err != nil {
		return nil, err
	}
	txID := ctx.GetStub().GetTxID()
	r := &Response{
		ID:          id,
		SurveyID:    surveyID,
		QuestionID:  questionID,
		Respondent:  caller,
		SubmittedAt: now,
		Handle:      fhe.Handle(ct),
		TxID:        txID,
	}
	if err := putJSON(ctx, idKey(keyResponsePfx, id), r); err != nil {
		return nil, err
	}
	priv := EncryptedResponse{
		ResponseID: id,
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Proof:      strings.TrimSpace(proof),
	}
	if err := ctx.GetStub().PutPrivateData(responsesPDC, idKey(keyPDCResponse, id), mustJSON(priv)); err != nil {
		return nil, fmt.Errorf("put PDC: %w", err)
	}
	if err := appendID(ctx, keyUserResponses+caller, id); err != nil {
		return nil, err
	}
	if err := ctx.GetStub().PutState(answeredKey(questionID, caller), []byte(fmt.Sprint(id))); err != nil {
		return nil, err
	}
	s.ResponseCount++
	if err := putJSON(ctx, idKey(keySurveyPrefix, surveyID), s); err != nil {
		return nil, err
	}

	emit(ctx, p, eventResponseSubmitted, map[string]any{
		"surveyId":   surveyID,
		"questionId": questionID,
		"responseId": id,
		"respondent": caller,
		"handle":     r.Handle,
	})
	log.With(log.Fields{"tx": txID, "survey": surveyID, "question": questionID, "response": id}).Debug("response recorded")

	return &Receipt{ResponseID: id, TxID: txID, Handle: r.Handle, SubmittedAt: now}, nil
}

// loadStats returns the accumulator of a question, or an empty one before
// the first response.
func loadStats(ctx contractapi.TransactionContextInterface, surveyID, questionID uint64) (*QuestionStats, error) {
	st := &QuestionStats{SurveyID: surveyID, QuestionID: questionID}
	if _, err := getJSON(ctx, idKey(keyStatsPrefix, questionID), st); err != nil {
		return nil, err
	}
	return st, nil
}

// GetQuestionStats returns the encrypted aggregate of a question. Creator
// only; decrypt it off-chain with the survey secret key.
func (c *SurveyXContract) GetQuestionStats(ctx contractapi.TransactionContextInterface, surveyID uint64, questionID uint64) (*QuestionStats, error) {
	if _, _, err := requireCreator(ctx, surveyID); err != nil {
		return nil, err
	}
	q, err := loadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.SurveyID != surveyID {
		return nil, ErrQuestionMismatch
	}
	return loadStats(ctx, surveyID, questionID)
}

// GetResponse returns the public metadata of a response.
func (c *SurveyXContract) GetResponse(ctx contractapi.TransactionContextInterface, responseID uint64) (*Response, error) {
	var r Response
	ok, err := getJSON(ctx, idKey(keyResponsePfx, responseID), &r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrResponseNotFound
	}
	return &r, nil
}

// GetUserResponses lists the response ids submitted by user, oldest first.
func (c *SurveyXContract) GetUserResponses(ctx contractapi.TransactionContextInterface, user string) ([]uint64, error) {
	return readIDs(ctx, keyUserResponses+user)
}

// GetResponseCounter returns the number of responses recorded so far.
func (c *SurveyXContract) GetResponseCounter(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return readCounter(ctx, counterResponse)
}

// VerifyResponseReceipt checks a receipt handle against the recorded response.
// A mismatch is reported in the result, not as an error.
func (c *SurveyXContract) VerifyResponseReceipt(ctx contractapi.TransactionContextInterface, responseID uint64, handle string) (*ReceiptCheck, error) {
	var r Response
	ok, err := getJSON(ctx, idKey(keyResponsePfx, responseID), &r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ReceiptCheck{OK: false, Reason: "unknown_response"}, nil
	}
	if !strings.EqualFold(strings.TrimSpace(handle), r.Handle) {
		return &ReceiptCheck{OK: false, Reason: "receipt_mismatch"}, nil
	}
	return &ReceiptCheck{OK: true}, nil
}
