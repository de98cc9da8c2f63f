package main

import (
	"github.com/google/uuid"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

// shareNamespace scopes the name-based share ids to this contract.
var shareNamespace = uuid.MustParse("6f1c3b0e-5a7d-4b8e-9f21-3c4d5e6f7a80")

// GenerateShareID issues a share identifier for the caller. The id is a
// UUIDv5 over txID and caller, so every endorser derives the same value.
func (c *SurveyXContract) GenerateShareID(ctx contractapi.TransactionContextInterface) (string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	now, err := txUnix(ctx)
	if err != nil {
		return "", err
	}
	txID := ctx.GetStub().GetTxID()
	id := uuid.NewSHA1(shareNamespace, []byte(txID+"|"+caller)).String()

	rec := &ShareRecord{ShareID: id, Creator: caller, TxID: txID, CreatedAt: now}
	if err := putJSON(ctx, keySharePrefix+id, rec); err != nil {
		return "", err
	}
	p, err := getParams(ctx)
	if err != nil {
		return "", err
	}
	emit(ctx, p, eventShareIDGenerated, map[string]any{"shareId": id, "creator": caller})
	return id, nil
}

// ResolveShareID returns the record behind a share id.
func (c *SurveyXContract) ResolveShareID(ctx contractapi.TransactionContextInterface, shareID string) (*ShareRecord, error) {
	if _, err := uuid.Parse(shareID); err != nil {
		return nil, ErrShareNotFound
	}
	var rec ShareRecord
	ok, err := getJSON(ctx, keySharePrefix+shareID, &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrShareNotFound
	}
	return &rec, nil
}
