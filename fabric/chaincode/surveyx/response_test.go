// response_test.go
//
// Purpose: End-to-end response flow with real BGV ciphertexts and secp256k1
// attestations: accumulation, lifecycle and access gates, duplicate
// handling, proof checks, receipts and creator-only stats.

package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/yourorg/surveyx_cc/fhe"
	"github.com/yourorg/surveyx_cc/log"
)

func TestResponse_AccumulatorDecryptsToSum(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	r1, err := h.submit(sid, qid, 4)
	requireNoErr(t, err)
	h.as(testCarol)
	r2, err := h.submit(sid, qid, 5)
	requireNoErr(t, err)
	h.as(testAlice)
	_, err = h.submit(sid, qid, 2)
	requireNoErr(t, err)

	if r1.ResponseID != 1 || r2.ResponseID != 2 {
		t.Fatalf("response ids=%d,%d", r1.ResponseID, r2.ResponseID)
	}

	st, err := h.cc.GetQuestionStats(h.ctx, sid, qid)
	requireNoErr(t, err)
	if st.Responses != 3 {
		t.Fatalf("responses=%d", st.Responses)
	}
	if got := h.decryptStats(st); got != 11 {
		t.Fatalf("decrypted sum=%d want 11", got)
	}
	raw, _ := base64.StdEncoding.DecodeString(st.Ciphertext)
	if st.Handle != fhe.Handle(raw) {
		t.Fatalf("stats handle does not match ciphertext")
	}

	s, _ := h.cc.GetSurvey(h.ctx, sid)
	if s.ResponseCount != 3 {
		t.Fatalf("responseCount=%d", s.ResponseCount)
	}
	n, _ := h.cc.GetResponseCounter(h.ctx)
	if n != 3 {
		t.Fatalf("response counter=%d", n)
	}
}

func TestResponse_RecordsMetadataAndPrivateCiphertext(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	h.advance(30)
	ct := h.encrypt(3)
	proof := h.attest(sid, qid, ct)
	rc, err := h.cc.SubmitResponse(h.ctx, sid, qid, ct, proof)
	requireNoErr(t, err)

	raw, _ := base64.StdEncoding.DecodeString(ct)
	if rc.Handle != fhe.Handle(raw) || rc.TxID != h.txID || rc.SubmittedAt != testNow+30 {
		t.Fatalf("receipt=%+v", rc)
	}

	r, err := h.cc.GetResponse(h.ctx, rc.ResponseID)
	requireNoErr(t, err)
	if r.SurveyID != sid || r.QuestionID != qid || r.Respondent != testBob || r.Handle != rc.Handle {
		t.Fatalf("response=%+v", r)
	}

	pd := h.mem.pdc[responsesPDC][idKey(keyPDCResponse, rc.ResponseID)]
	var enc EncryptedResponse
	if err := json.Unmarshal(pd, &enc); err != nil {
		t.Fatalf("pdc record: %v", err)
	}
	if enc.Ciphertext != ct || enc.Proof != proof {
		t.Fatalf("pdc record does not hold the submitted input")
	}
	// The ciphertext never lands in public state.
	if _, ok := h.mem.ws[idKey(keyResponsePfx, rc.ResponseID)]; !ok {
		t.Fatalf("public response record missing")
	}
	var pub map[string]any
	_ = json.Unmarshal(h.mem.ws[idKey(keyResponsePfx, rc.ResponseID)], &pub)
	if _, leaked := pub["ciphertext"]; leaked {
		t.Fatalf("ciphertext in public response record")
	}

	ids, err := h.cc.GetUserResponses(h.ctx, testBob)
	requireNoErr(t, err)
	requireIDs(t, ids, rc.ResponseID)

	if name, payload := h.mem.lastEvent(t); name != eventResponseSubmitted || payload["handle"] != rc.Handle {
		t.Fatalf("event=%s %v", name, payload)
	}
}

func TestResponse_LifecycleGates(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	_, err := h.submit(404, qid, 1)
	if !errors.Is(err, ErrSurveyNotFound) {
		t.Fatalf("unknown survey: %v", err)
	}

	h.as(testAlice)
	requireNoErr(t, h.cc.DeactivateSurvey(h.ctx, sid))
	h.as(testBob)
	_, err = h.submit(sid, qid, 1)
	if err == nil || err.Error() != "Survey is not active" {
		t.Fatalf("inactive survey: %v", err)
	}

	h.as(testAlice)
	requireNoErr(t, h.cc.ActivateSurvey(h.ctx, sid))
	h.advance(testHourSec)
	h.as(testBob)
	_, err = h.submit(sid, qid, 1)
	if err == nil || err.Error() != "Survey has expired" {
		t.Fatalf("expired survey: %v", err)
	}
}

func TestResponse_PrivateSurveyNeedsPermission(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(false)

	h.as(testBob)
	_, err := h.submit(sid, qid, 2)
	if err == nil || err.Error() != "No permission to respond to this survey" {
		t.Fatalf("unpermitted: %v", err)
	}

	h.as(testAlice)
	requireNoErr(t, h.cc.GrantPermission(h.ctx, sid, testBob))
	h.as(testBob)
	_, err = h.submit(sid, qid, 2)
	requireNoErr(t, err)

	// The creator may always answer their own survey.
	h.as(testAlice)
	_, err = h.submit(sid, qid, 1)
	requireNoErr(t, err)
}

func TestResponse_QuestionMustBelongToSurvey(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, _ := h.openSurvey(true)
	_, otherQ := h.openSurvey(true)

	h.as(testBob)
	_, err := h.submit(sid, otherQ, 1)
	if err == nil || err.Error() != "Question does not belong to this survey" {
		t.Fatalf("foreign question: %v", err)
	}
	_, err = h.submit(sid, 999, 1)
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("unknown question: %v", err)
	}
}

func TestResponse_KeyRequired(t *testing.T) {
	h := newHarness(t).withCrypto()
	h.as(testAlice)
	sid := h.createSurvey("No key", true)
	qid := h.addRating(sid, 5)
	h.tx()
	requireNoErr(t, h.cc.ActivateSurvey(h.ctx, sid))

	h.as(testBob)
	_, err := h.submit(sid, qid, 1)
	if err == nil || err.Error() != "Survey encryption key not set" {
		t.Fatalf("no key: %v", err)
	}
}

func TestResponse_DuplicateAnswers(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	_, err := h.submit(sid, qid, 3)
	requireNoErr(t, err)
	_, err = h.submit(sid, qid, 3)
	if err == nil || err.Error() != "Already responded to this question" {
		t.Fatalf("duplicate: %v", err)
	}

	h.as(testOwner)
	requireNoErr(t, h.cc.SetParams(h.ctx, `{"ALLOW_RESUBMIT":true}`))
	h.as(testBob)
	_, err = h.submit(sid, qid, 3)
	requireNoErr(t, err)

	h.as(testAlice)
	st, err := h.cc.GetQuestionStats(h.ctx, sid, qid)
	requireNoErr(t, err)
	if st.Responses != 2 || h.decryptStats(st) != 6 {
		t.Fatalf("stats responses=%d", st.Responses)
	}
}

func TestResponse_ProofChecks(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	ct := h.encrypt(2)

	_, err := h.cc.SubmitResponse(h.ctx, sid, qid, ct, "")
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("missing proof: %v", err)
	}

	// Proof issued to another respondent does not transfer.
	h.ctx.id.ID = testCarol
	carolProof := h.attest(sid, qid, ct)
	h.ctx.id.ID = testBob
	_, err = h.cc.SubmitResponse(h.ctx, sid, qid, ct, carolProof)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("replayed proof: %v", err)
	}

	// Proof bound to a different ciphertext fails.
	other := h.encrypt(2)
	_, err = h.cc.SubmitResponse(h.ctx, sid, qid, other, h.attest(sid, qid, ct))
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("proof for other ciphertext: %v", err)
	}

	st, _ := loadStats(h.ctx, sid, qid)
	if st.Responses != 0 {
		t.Fatalf("rejected inputs reached the accumulator")
	}

	// With proofs disabled the same input is accepted.
	h.as(testOwner)
	requireNoErr(t, h.cc.SetParams(h.ctx, `{"REQUIRE_INPUT_PROOF":false}`))
	h.as(testBob)
	_, err = h.cc.SubmitResponse(h.ctx, sid, qid, ct, "")
	requireNoErr(t, err)
}

func TestResponse_RejectedProofIsLogged(t *testing.T) {
	hook := logtest.NewLocal(log.Logger)
	defer log.Logger.ReplaceHooks(make(logrus.LevelHooks))

	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)
	h.as(testBob)
	_, err := h.cc.SubmitResponse(h.ctx, sid, qid, h.encrypt(1), "00")
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("bad proof: %v", err)
	}

	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel || !strings.Contains(e.Message, "input proof rejected") {
		t.Fatalf("warning not logged: %+v", e)
	}
	if !strings.Contains(e.Message, h.txID) {
		t.Fatalf("warning lacks tx id: %q", e.Message)
	}
}

func TestResponse_VerifierKeyRequired(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testOwner)
	requireNoErr(t, h.cc.SetParams(h.ctx, `{"INPUT_VERIFIER_KEY":""}`))
	h.as(testBob)
	_, err := h.submit(sid, qid, 1)
	if !errors.Is(err, ErrVerifierNotSet) {
		t.Fatalf("no verifier: %v", err)
	}
}

func TestResponse_RejectsMalformedCiphertext(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)
	h.as(testBob)

	for _, in := range []string{"", "%%%", base64.StdEncoding.EncodeToString([]byte("not a ciphertext"))} {
		h.tx()
		_, err := h.cc.SubmitResponse(h.ctx, sid, qid, in, "00")
		if err == nil {
			t.Fatalf("input %q accepted", in)
		}
	}

	// An attested payload still has to parse as a ciphertext.
	garbage := base64.StdEncoding.EncodeToString([]byte("not a ciphertext"))
	h.tx()
	_, err := h.cc.SubmitResponse(h.ctx, sid, qid, garbage, h.attest(sid, qid, garbage))
	if !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("garbage ciphertext: %v", err)
	}
}

// Near-valid ciphertexts carry a valid attestation, so only the ciphertext
// checks stand between them and the accumulator.
func TestResponse_RejectsTamperedCiphertext(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	_, err := h.submit(sid, qid, 4)
	requireNoErr(t, err)

	fresh, err := fhe.Encrypt(h.bgvParams, h.pk, 1)
	requireNoErr(t, err)
	restamp := func(mut func(ct *rlwe.Ciphertext)) []byte {
		ct, err := fhe.ParseCiphertext(h.bgvParams, fresh)
		requireNoErr(t, err)
		mut(ct)
		out, err := ct.MarshalBinary()
		requireNoErr(t, err)
		return out
	}
	cases := map[string][]byte{
		"truncated": fresh[:len(fresh)-8],
		"extended":  append(append([]byte(nil), fresh...), 1, 2, 3, 4),
		"scale": restamp(func(ct *rlwe.Ciphertext) {
			ct.Scale = ct.Scale.Mul(h.bgvParams.NewScale(3))
		}),
		"not NTT":     restamp(func(ct *rlwe.Ciphertext) { ct.IsNTT = false }),
		"montgomery":  restamp(func(ct *rlwe.Ciphertext) { ct.IsMontgomery = true }),
		"not batched": restamp(func(ct *rlwe.Ciphertext) { ct.IsBatched = false }),
	}

	h.as(testCarol)
	for name, raw := range cases {
		in := base64.StdEncoding.EncodeToString(raw)
		h.tx()
		_, err := h.cc.SubmitResponse(h.ctx, sid, qid, in, h.attest(sid, qid, in))
		if !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("%s: err=%v want ErrInvalidCiphertext", name, err)
		}
	}

	_, err = h.submit(sid, qid, 1)
	requireNoErr(t, err)

	h.as(testAlice)
	st, err := h.cc.GetQuestionStats(h.ctx, sid, qid)
	requireNoErr(t, err)
	if st.Responses != 2 {
		t.Fatalf("responses=%d want 2", st.Responses)
	}
	if got := h.decryptStats(st); got != 5 {
		t.Fatalf("aggregate=%d want 5", got)
	}
}

func TestResponse_KeyLockedAfterFirstResponse(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	_, err := h.submit(sid, qid, 1)
	requireNoErr(t, err)

	h.as(testAlice)
	if err := h.cc.SetSurveyKey(h.ctx, sid, h.keyJSON()); !errors.Is(err, ErrKeyLocked) {
		t.Fatalf("rekey after response: %v", err)
	}
}

func TestResponse_StatsCreatorOnly(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	st, err := h.cc.GetQuestionStats(h.ctx, sid, qid)
	requireNoErr(t, err)
	if st.Responses != 0 || st.Ciphertext != "" || st.Handle != "" || st.QuestionID != qid {
		t.Fatalf("empty stats=%+v", st)
	}

	h.as(testBob)
	_, err = h.cc.GetQuestionStats(h.ctx, sid, qid)
	if err == nil || err.Error() != "Only survey creator can perform this action" {
		t.Fatalf("bob stats: %v", err)
	}
}

func TestResponse_VerifyReceipt(t *testing.T) {
	h := newHarness(t).withCrypto()
	sid, qid := h.openSurvey(true)

	h.as(testBob)
	rc, err := h.submit(sid, qid, 5)
	requireNoErr(t, err)

	chk, err := h.cc.VerifyResponseReceipt(h.ctx, rc.ResponseID, rc.Handle)
	requireNoErr(t, err)
	if !chk.OK {
		t.Fatalf("receipt rejected: %+v", chk)
	}
	chk, err = h.cc.VerifyResponseReceipt(h.ctx, rc.ResponseID, "deadbeef")
	requireNoErr(t, err)
	if chk.OK || chk.Reason != "receipt_mismatch" {
		t.Fatalf("mismatch check=%+v", chk)
	}
	chk, err = h.cc.VerifyResponseReceipt(h.ctx, 999, rc.Handle)
	requireNoErr(t, err)
	if chk.OK || chk.Reason != "unknown_response" {
		t.Fatalf("unknown check=%+v", chk)
	}
	_, err = h.cc.GetResponse(h.ctx, 999)
	if !errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("GetResponse unknown: %v", err)
	}
}
