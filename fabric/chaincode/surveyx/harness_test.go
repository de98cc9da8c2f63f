// harness_test.go
//
// Purpose: Deterministic in-memory harness for the SurveyX chaincode.
// Role: Provides an in-memory world state / private data "ledger", a mocked
// Fabric ChaincodeStub (via gomock), a switchable caller identity and a
// real lattigo BGV key pair plus secp256k1 input verifier, so tests drive the
// contract end to end without peers.
// Key deps:
// - Hyperledger Fabric: chaincode-go/shim + cid, contractapi
// - gomock for stub expectations and return paths
// - protobuf timestamppb for controllable TxTimestamp values
// - lattigo v6 (small LogN=10 parameters) and dcrd secp256k1
// Notes:
// - Byte slices are copied on the way in and out of the maps.
// - Each call to h.tx() starts a new "transaction" with a fresh txID.

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/golang/mock/gomock"
	"github.com/hyperledger/fabric-chaincode-go/v2/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"google.golang.org/protobuf/types/known/timestamppb"

	f "github.com/yourorg/surveyx_cc/fakes"
	"github.com/yourorg/surveyx_cc/fhe"
)

const (
	testOwner         = "x509::CN=owner,OU=admin::CN=ca.org1"
	testAlice         = "x509::CN=alice,OU=client::CN=ca.org1"
	testBob           = "x509::CN=bob,OU=client::CN=ca.org1"
	testCarol         = "x509::CN=carol,OU=client::CN=ca.org1"
	testNow     int64 = 1760000000
	testHourSec int64 = 3600
)

/* in-memory WS/PDC harness */

type eventRec struct {
	name    string
	payload []byte
}

// memWorld is a tiny in-memory ledger used by the mock stub.
type memWorld struct {
	ws        map[string][]byte
	pdc       map[string]map[string][]byte
	transient map[string][]byte
	events    []eventRec
}

func newMemWorld() *memWorld {
	return &memWorld{ws: make(map[string][]byte), pdc: make(map[string]map[string][]byte)}
}

func (m *memWorld) getState(key string) ([]byte, error) {
	if v, ok := m.ws[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (m *memWorld) putState(key string, val []byte) error {
	m.ws[key] = append([]byte(nil), val...)
	return nil
}

func (m *memWorld) delState(key string) error {
	delete(m.ws, key)
	return nil
}

func (m *memWorld) getPDC(coll, key string) ([]byte, error) {
	if cm, ok := m.pdc[coll]; ok {
		if v, ok := cm[key]; ok {
			return append([]byte(nil), v...), nil
		}
	}
	return nil, nil
}

func (m *memWorld) putPDC(coll, key string, val []byte) error {
	if m.pdc[coll] == nil {
		m.pdc[coll] = make(map[string][]byte)
	}
	m.pdc[coll][key] = append([]byte(nil), val...)
	return nil
}

func (m *memWorld) getTransient() (map[string][]byte, error) {
	return m.transient, nil
}

func (m *memWorld) setEvent(name string, payload []byte) error {
	m.events = append(m.events, eventRec{name: name, payload: append([]byte(nil), payload...)})
	return nil
}

// lastEvent returns the most recent event, decoded.
func (m *memWorld) lastEvent(t *testing.T) (string, map[string]any) {
	t.Helper()
	if len(m.events) == 0 {
		t.Fatalf("no events emitted")
	}
	ev := m.events[len(m.events)-1]
	var payload map[string]any
	if err := json.Unmarshal(ev.payload, &payload); err != nil {
		t.Fatalf("event %s payload: %v", ev.name, err)
	}
	return ev.name, payload
}

/* tx context w/ switchable identity */

// simpleTxCtx adapts the mocked stub and a fixed identity to a contractapi
// TransactionContext.
type simpleTxCtx struct {
	s  shim.ChaincodeStubInterface
	id *f.Identity
}

func (c *simpleTxCtx) GetStub() shim.ChaincodeStubInterface { return c.s }

func (c *simpleTxCtx) GetClientIdentity() cid.ClientIdentity { return c.id }

/* test harness */

type testHarness struct {
	ctrl *gomock.Controller
	ctx  *simpleTxCtx
	stub *f.MockChaincodeStubInterface
	mem  *memWorld
	cc   *SurveyXContract
	t    *testing.T

	txSeq int
	txID  string
	now   int64

	// FHE and attestation fixtures.
	fheParams fhe.Params
	bgvParams bgv.Parameters
	sk        *rlwe.SecretKey
	pk        *rlwe.PublicKey
	key       *fhe.SurveyKey
	verifier  *secp256k1.PrivateKey
}

// newHarness builds a mocked Fabric transaction context wired to in-memory
// maps. The caller starts as testOwner and the clock at testNow.
func newHarness(t *testing.T) *testHarness {
	t.Helper()

	ctrl := gomock.NewController(t)
	stub := f.NewMockChaincodeStubInterface(ctrl)
	mem := newMemWorld()

	h := &testHarness{
		ctrl: ctrl,
		ctx:  &simpleTxCtx{s: stub, id: &f.Identity{ID: testOwner, MSPID: "Org1MSP"}},
		stub: stub,
		mem:  mem,
		cc:   new(SurveyXContract),
		t:    t,
		txID: "tx-0000",
		now:  testNow,
	}

	stub.EXPECT().GetTxID().AnyTimes().DoAndReturn(func() string { return h.txID })
	stub.EXPECT().GetTxTimestamp().AnyTimes().DoAndReturn(func() (*timestamppb.Timestamp, error) {
		return &timestamppb.Timestamp{Seconds: h.now}, nil
	})
	stub.EXPECT().GetChannelID().AnyTimes().Return("surveychan")

	stub.EXPECT().GetState(gomock.Any()).AnyTimes().DoAndReturn(mem.getState)
	stub.EXPECT().PutState(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.putState)
	stub.EXPECT().DelState(gomock.Any()).AnyTimes().DoAndReturn(mem.delState)
	stub.EXPECT().GetPrivateData(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.getPDC)
	stub.EXPECT().PutPrivateData(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.putPDC)
	stub.EXPECT().GetTransient().AnyTimes().DoAndReturn(mem.getTransient)
	stub.EXPECT().SetEvent(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.setEvent)

	return h
}

// as switches the caller and starts a new transaction.
func (h *testHarness) as(client string) *testHarness {
	h.ctx.id.ID = client
	h.tx()
	return h
}

// tx starts a new transaction with a fresh txID.
func (h *testHarness) tx() {
	h.txSeq++
	h.txID = fmt.Sprintf("tx-%04d", h.txSeq)
}

// advance moves the transaction clock forward.
func (h *testHarness) advance(seconds int64) { h.now += seconds }

// withCrypto generates the survey BGV keys and the input verifier, then
// initialises the ledger as testOwner with the verifier key installed.
func (h *testHarness) withCrypto() *testHarness {
	h.t.Helper()
	h.fheParams = fhe.Params{LogN: 10, LogQ: []int{54}, PlaintextModulus: 65537}
	sk, key, err := fhe.GenerateKeys(h.fheParams)
	requireNoErr(h.t, err)
	params, pk, err := key.Decode()
	requireNoErr(h.t, err)
	h.sk, h.key, h.bgvParams, h.pk = sk, key, params, pk

	v, err := fhe.GenerateVerifierKey()
	requireNoErr(h.t, err)
	h.verifier = v

	h.as(testOwner)
	requireNoErr(h.t, h.cc.InitLedger(h.ctx))
	h.tx()
	requireNoErr(h.t, h.cc.SetParams(h.ctx, fmt.Sprintf(`{"INPUT_VERIFIER_KEY":%q}`, fhe.VerifierPublicHex(v))))
	return h
}

func (h *testHarness) keyJSON() string {
	return string(mustJSON(h.key))
}

// encrypt returns a base64 ciphertext of v under the survey key.
func (h *testHarness) encrypt(v uint64) string {
	h.t.Helper()
	s, err := fhe.EncryptB64(h.bgvParams, h.pk, v)
	requireNoErr(h.t, err)
	return s
}

// attest signs the input digest for the current caller.
func (h *testHarness) attest(surveyID, questionID uint64, ctB64 string) string {
	h.t.Helper()
	raw, err := base64.StdEncoding.DecodeString(ctB64)
	requireNoErr(h.t, err)
	return fhe.SignInput(h.verifier, fhe.InputDigest(surveyID, questionID, h.ctx.id.ID, raw))
}

// submit encrypts v, attests it and submits it as the current caller.
func (h *testHarness) submit(surveyID, questionID, v uint64) (*Receipt, error) {
	h.t.Helper()
	h.tx()
	ct := h.encrypt(v)
	return h.cc.SubmitResponse(h.ctx, surveyID, questionID, ct, h.attest(surveyID, questionID, ct))
}

// decryptStats decrypts an accumulator with the survey secret key.
func (h *testHarness) decryptStats(st *QuestionStats) uint64 {
	h.t.Helper()
	raw, err := base64.StdEncoding.DecodeString(st.Ciphertext)
	requireNoErr(h.t, err)
	v, err := fhe.Decrypt(h.bgvParams, h.sk, raw)
	requireNoErr(h.t, err)
	return v
}

/* scenario builders */

// createSurvey creates a survey as the current caller lasting one hour.
func (h *testHarness) createSurvey(title string, isPublic bool) uint64 {
	h.t.Helper()
	h.tx()
	id, err := h.cc.CreateSurvey(h.ctx, title, "description of "+title, testHourSec, isPublic)
	requireNoErr(h.t, err)
	return id
}

func (h *testHarness) addRating(surveyID uint64, maxRating uint32) uint64 {
	h.t.Helper()
	h.tx()
	id, err := h.cc.AddQuestion(h.ctx, surveyID, uint8(Rating), "How would you rate it?", nil, maxRating, true)
	requireNoErr(h.t, err)
	return id
}

// openSurvey builds a keyed, active survey with one rating question,
// created by alice. Callers must have run withCrypto.
func (h *testHarness) openSurvey(isPublic bool) (surveyID, questionID uint64) {
	h.t.Helper()
	h.as(testAlice)
	surveyID = h.createSurvey("Team feedback", isPublic)
	questionID = h.addRating(surveyID, 5)
	h.tx()
	requireNoErr(h.t, h.cc.SetSurveyKey(h.ctx, surveyID, h.keyJSON()))
	h.tx()
	requireNoErr(h.t, h.cc.ActivateSurvey(h.ctx, surveyID))
	return surveyID, questionID
}

/* assertion helpers */

// requireNoErr fails the test immediately if err is non-nil.
func requireNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// requireErrContains asserts that err is non-nil and its message contains
// wantSubstr (case-insensitive).
func requireErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", wantSubstr)
	}
	if wantSubstr != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(wantSubstr)) {
		t.Fatalf("error %q does not contain %q", err.Error(), wantSubstr)
	}
}

func requireIDs(t *testing.T, got []uint64, want ...uint64) {
	t.Helper()
	if got == nil {
		t.Fatalf("id list is nil, want non-nil")
	}
	if len(got) != len(want) {
		t.Fatalf("ids=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids=%v want %v", got, want)
		}
	}
}

var _ contractapi.TransactionContextInterface = (*simpleTxCtx)(nil)
