// -----------------------------------------------------------------------------
// SurveyX contract (Go, Fabric v3)
// Purpose: Confidential survey registry. Surveys, questions and permissions
// live in world state; every answer arrives as a BGV ciphertext that is
// folded into a per-question encrypted accumulator without being decrypted.
// Only the survey creator holds the secret key and reads the accumulator.
// Key dependencies: Hyperledger Fabric contractapi/cid; lattigo BGV (fhe pkg)
// for ciphertext checks and homomorphic addition; secp256k1 input
// attestations from an off-chain input verifier; private data collection
// "responses_pdc" for individual response ciphertexts.
// -----------------------------------------------------------------------------

/*
surveyx.go holds the contract type, ledger layout and shared helpers.

Write path overview:
  - CreateSurvey / AddQuestion / Activate / Grant are creator-gated state edits.
  - SubmitResponse checks lifecycle and access, verifies the input attestation,
    adds the ciphertext into STATS::<question> and records RESPONSE::<id>.
  - GetQuestionStats returns the accumulator to the creator for off-chain
    decryption (surveyxkit decrypt).
*/
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

/* Keys & constants */

const (
	// Collections
	responsesPDC = "responses_pdc"

	// World state keys (public)
	keyOwner         = "OWNER"
	keyParams        = "PARAMS"
	keyCounterPrefix = "CTR::"
	keySurveyPrefix  = "SURVEY::"      // SURVEY::<id> → Survey
	keySurveyKeyPfx  = "SKEY::"        // SKEY::<surveyId> → fhe.SurveyKey
	keyQuestionPfx   = "QUESTION::"    // QUESTION::<id> → Question
	keySurveyQsPfx   = "SURVEYQ::"     // SURVEYQ::<surveyId> → []questionId
	keyUserSurveys   = "USERSURVEYS::" // USERSURVEYS::<client> → []surveyId
	keyPublicSurveys = "PUBLICSURVEYS" // → []surveyId
	keyPermPrefix    = "PERM::"        // PERM::<surveyId>::<client> → "1"
	keyStatsPrefix   = "STATS::"       // STATS::<questionId> → QuestionStats
	keyResponsePfx   = "RESPONSE::"    // RESPONSE::<id> → Response
	keyUserResponses = "USERRESP::"    // USERRESP::<client> → []responseId
	keyAnsweredPfx   = "ANSWERED::"    // ANSWERED::<questionId>::<client> → responseId
	keySharePrefix   = "SHARE::"       // SHARE::<shareId> → ShareRecord
	keyPDCResponse   = "RESP::"        // PDC RESP::<id> → EncryptedResponse

	counterSurvey   = "survey"
	counterQuestion = "question"
	counterResponse = "response"
)

const (
	eventInitialised       = "ContractInitialised"
	eventParamsUpdated     = "ParamsUpdated"
	eventSurveyCreated     = "SurveyCreated"
	eventSurveyActivated   = "SurveyActivated"
	eventSurveyDeactivated = "SurveyDeactivated"
	eventSurveyKeySet      = "SurveyKeySet"
	eventQuestionAdded     = "QuestionAdded"
	eventPermissionGranted = "PermissionGranted"
	eventPermissionRevoked = "PermissionRevoked"
	eventResponseSubmitted = "ResponseSubmitted"
	eventShareIDGenerated  = "ShareIdGenerated"
)

/* Types & small data models */

// SurveyXContract implements the Fabric contract for confidential surveys.
//
// Responsibilities:
// - Keep the survey / question / permission registry.
// - Accept encrypted answers and maintain one encrypted accumulator per question.
// - Expose read-only getters mirroring the public state of the registry.
type SurveyXContract struct{ contractapi.Contract }

// QuestionType enumerates the supported question kinds.
type QuestionType uint8

const (
	SingleChoice QuestionType = iota
	MultipleChoice
	Text
	Rating
)

func (t QuestionType) String() string {
	switch t {
	case SingleChoice:
		return "SINGLE_CHOICE"
	case MultipleChoice:
		return "MULTIPLE_CHOICE"
	case Text:
		return "TEXT"
	case Rating:
		return "RATING"
	default:
		return "UNKNOWN"
	}
}

func (t QuestionType) isChoice() bool { return t == SingleChoice || t == MultipleChoice }

// Survey is stored at SURVEY::<id>. Creator never changes once written.
type Survey struct {
	ID            uint64 `json:"id"`
	Creator       string `json:"creator"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CreatedAt     int64  `json:"createdAt"`
	ExpiresAt     int64  `json:"expiresAt"`
	IsActive      bool   `json:"isActive"`
	IsPublic      bool   `json:"isPublic"`
	QuestionCount uint64 `json:"questionCount"`
	ResponseCount uint64 `json:"responseCount"`
	HasKey        bool   `json:"hasKey"`
}

// Question is stored at QUESTION::<id> and is immutable.
type Question struct {
	ID           uint64   `json:"id"`
	SurveyID     uint64   `json:"surveyId"`
	QuestionType uint8    `json:"questionType"`
	QuestionText string   `json:"questionText"`
	Options      []string `json:"options"`
	MaxRating    uint32   `json:"maxRating"`
	IsRequired   bool     `json:"isRequired"`
}

// QuestionData is the field tuple returned by GetQuestionData.
type QuestionData struct {
	SurveyID     uint64 `json:"surveyId"`
	QuestionType uint8  `json:"questionType"`
	QuestionText string `json:"questionText"`
	MaxRating    uint32 `json:"maxRating"`
	IsRequired   bool   `json:"isRequired"`
}

// Response is the public metadata of one answer. The ciphertext itself is
// kept in the private collection; Handle is its sha256.
type Response struct {
	ID          uint64 `json:"id"`
	SurveyID    uint64 `json:"surveyId"`
	QuestionID  uint64 `json:"questionId"`
	Respondent  string `json:"respondent"`
	SubmittedAt int64  `json:"submittedAt"`
	Handle      string `json:"handle"`
	TxID        string `json:"txId"`
}

// EncryptedResponse is the private record stored at RESP::<id> in responses_pdc.
type EncryptedResponse struct {
	ResponseID uint64 `json:"responseId"`
	Ciphertext string `json:"ciphertext"`
	Proof      string `json:"proof"`
}

// QuestionStats is the encrypted running aggregate of a question.
// Handle and Ciphertext stay empty until the first response.
type QuestionStats struct {
	SurveyID   uint64 `json:"surveyId"`
	QuestionID uint64 `json:"questionId"`
	Handle     string `json:"handle"`
	Ciphertext string `json:"ciphertext"`
	Responses  uint64 `json:"responses"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// Receipt is returned by SubmitResponse.
type Receipt struct {
	ResponseID  uint64 `json:"responseId"`
	TxID        string `json:"txId"`
	Handle      string `json:"handle"`
	SubmittedAt int64  `json:"submittedAt"`
}

// ReceiptCheck is the outcome of VerifyResponseReceipt.
type ReceiptCheck struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// ShareRecord is stored at SHARE::<shareId>.
type ShareRecord struct {
	ShareID   string `json:"shareId"`
	Creator   string `json:"creator"`
	TxID      string `json:"txId"`
	CreatedAt int64  `json:"createdAt"`
}

// Params contains runtime toggles and limits used by the contract.
// Stored at PARAMS; fields missing from the stored JSON keep their defaults.
type Params struct {
	EmitEvents        bool   `json:"EMIT_EVENTS"`         // Default true
	RequireInputProof bool   `json:"REQUIRE_INPUT_PROOF"` // Default true: attestation must verify
	InputVerifierKey  string `json:"INPUT_VERIFIER_KEY"`  // Compressed secp256k1 key, hex
	AllowResubmit     bool   `json:"ALLOW_RESUBMIT"`      // Default false: one answer per question and client
	MaxOptions        int    `json:"MAX_OPTIONS"`
	MaxRating         uint32 `json:"MAX_RATING"`
}

func defaultParams() *Params {
	return &Params{
		EmitEvents:        true,
		RequireInputProof: true,
		MaxOptions:        32,
		MaxRating:         100,
	}
}

/* Small helpers */

// getParams reads the contract runtime parameters from world state.
func getParams(ctx contractapi.TransactionContextInterface) (*Params, error) {
	p := defaultParams()
	b, err := ctx.GetStub().GetState(keyParams)
	if err != nil {
		return nil, fmt.Errorf("get params: %w", err)
	}
	if b != nil {
		if err := json.Unmarshal(b, p); err != nil {
			return nil, fmt.Errorf("params json: %w", err)
		}
	}
	return p, nil
}

// callerID returns the Fabric client id of the submitter; it plays the role
// of the caller address.
func callerID(ctx contractapi.TransactionContextInterface) (string, error) {
	ci := ctx.GetClientIdentity()
	if ci == nil {
		return "", fmt.Errorf("client identity unavailable")
	}
	id, err := ci.GetID()
	if err != nil {
		return "", fmt.Errorf("client id: %w", err)
	}
	return id, nil
}

// txUnix returns the transaction timestamp in unix seconds, identical on every endorser.
func txUnix(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("tx timestamp: %w", err)
	}
	return ts.GetSeconds(), nil
}

// nowRFC3339 returns the transaction timestamp as an RFC3339 UTC string.
func nowRFC3339(ctx contractapi.TransactionContextInterface) string {
	ts, _ := ctx.GetStub().GetTxTimestamp()
	return time.Unix(ts.GetSeconds(), int64(ts.GetNanos())).UTC().Format(time.RFC3339)
}

// mustJSON marshals v and ignores errors (used for events and small writes).
func mustJSON(v any) []byte { b, _ := json.Marshal(v); return b }

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// idKey zero-pads ids so range scans come back in id order.
func idKey(prefix string, id uint64) string { return fmt.Sprintf("%s%020d", prefix, id) }

func permKey(surveyID uint64, client string) string {
	return fmt.Sprintf("%s%020d::%s", keyPermPrefix, surveyID, client)
}

func answeredKey(questionID uint64, client string) string {
	return fmt.Sprintf("%s%020d::%s", keyAnsweredPfx, questionID, client)
}

// nextID increments and returns the named counter. Ids start at 1.
func nextID(ctx contractapi.TransactionContextInterface, name string) (uint64, error) {
	n, err := readCounter(ctx, name)
	if err != nil {
		return 0, err
	}
	n++
	if err := ctx.GetStub().PutState(keyCounterPrefix+name, []byte(strconv.FormatUint(n, 10))); err != nil {
		return 0, err
	}
	return n, nil
}

func readCounter(ctx contractapi.TransactionContextInterface, name string) (uint64, error) {
	raw, err := ctx.GetStub().GetState(keyCounterPrefix + name)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s corrupt: %w", name, err)
	}
	return n, nil
}

// readIDs loads a JSON id list; a missing key is an empty list.
func readIDs(ctx contractapi.TransactionContextInterface, key string) ([]uint64, error) {
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []uint64{}, nil
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("id list %s: %w", key, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// appendID appends id to the list at key, keeping insertion order.
func appendID(ctx contractapi.TransactionContextInterface, key string, id uint64) error {
	ids, err := readIDs(ctx, key)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(key, mustJSON(append(ids, id)))
}

// getJSON loads key into v and reports whether it existed.
func getJSON(ctx contractapi.TransactionContextInterface, key string, v any) (bool, error) {
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(ctx contractapi.TransactionContextInterface, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(key, b)
}

// emit sets the transaction event when events are enabled. Fabric keeps one
// event per transaction, so each write path emits exactly once.
func emit(ctx contractapi.TransactionContextInterface, p *Params, name string, payload map[string]any) {
	if p == nil || !p.EmitEvents {
		return
	}
	payload["time"] = nowRFC3339(ctx)
	_ = ctx.GetStub().SetEvent(name, mustJSON(payload))
}

// loadSurvey fetches SURVEY::<id>.
func loadSurvey(ctx contractapi.TransactionContextInterface, id uint64) (*Survey, error) {
	var s Survey
	ok, err := getJSON(ctx, idKey(keySurveyPrefix, id), &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSurveyNotFound
	}
	return &s, nil
}

// requireCreator loads the survey and rejects callers other than its creator.
func requireCreator(ctx contractapi.TransactionContextInterface, surveyID uint64) (*Survey, string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return nil, "", err
	}
	s, err := loadSurvey(ctx, surveyID)
	if err != nil {
		return nil, "", err
	}
	if s.Creator != caller {
		return nil, "", ErrNotCreator
	}
	return s, caller, nil
}

// loadQuestion fetches QUESTION::<id>.
func loadQuestion(ctx contractapi.TransactionContextInterface, id uint64) (*Question, error) {
	var q Question
	ok, err := getJSON(ctx, idKey(keyQuestionPfx, id), &q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuestionNotFound
	}
	if q.Options == nil {
		q.Options = []string{}
	}
	return &q, nil
}

/* Health */

// Ping is a simple health check used by deployment tooling and test harnesses.
func (c *SurveyXContract) Ping(ctx contractapi.TransactionContextInterface) (string, error) {
	return "OK:" + ctx.GetStub().GetTxID(), nil
}

// WhoAmI returns the client id the contract sees for the caller, i.e. the
// address to hand to GrantPermission.
func (c *SurveyXContract) WhoAmI(ctx contractapi.TransactionContextInterface) (string, error) {
	return callerID(ctx)
}
