// Command surveyxkit is the off-chain companion of the SurveyX chaincode.
//
//	surveyxkit keygen -logn 12 -secret survey.sk -key survey.key.json
//	surveyxkit verifier-keygen
//	surveyxkit encrypt -key survey.key.json -type 3 -max 5 -answer 4
//	surveyxkit attest -verifier <hex> -survey 1 -question 1 -client <id> -ct answer.b64
//	surveyxkit decrypt -key survey.key.json -secret survey.sk -stats stats.json
//
// The key file produced by keygen is the argument of SetSurveyKey; the
// verifier public key goes into the INPUT_VERIFIER_KEY parameter.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yourorg/surveyx_cc/fhe"
	"github.com/yourorg/surveyx_cc/log"
)

var errUsage = errors.New("usage: surveyxkit <keygen|verifier-keygen|encrypt|attest|decrypt> [flags]")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return keygen(rest, out)
	case "verifier-keygen":
		return verifierKeygen(rest, out)
	case "encrypt":
		return encrypt(rest, out)
	case "attest":
		return attest(rest, out)
	case "decrypt":
		return decrypt(rest, out)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func keygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	logN := fs.Int("logn", fhe.DefaultParams().LogN, "ring degree log2")
	secretPath := fs.String("secret", "survey.sk", "secret key output file")
	keyPath := fs.String("key", "survey.key.json", "public key output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := fhe.DefaultParams()
	p.LogN = *logN
	if err := p.Validate(); err != nil {
		return err
	}
	sk, key, err := fhe.GenerateKeys(p)
	if err != nil {
		return err
	}
	skB64, err := fhe.MarshalSecretKey(sk)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*secretPath, []byte(skB64), 0o600); err != nil {
		return err
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*keyPath, keyJSON, 0o644); err != nil {
		return err
	}
	log.Infof("wrote %s and %s", *secretPath, *keyPath)
	_, err = fmt.Fprintln(out, key.Digest)
	return err
}

func verifierKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verifier-keygen", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	priv, err := fhe.GenerateVerifierKey()
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(map[string]string{
		"private": fmt.Sprintf("%x", priv.Serialize()),
		"public":  fhe.VerifierPublicHex(priv),
	})
}

func encrypt(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	keyPath := fs.String("key", "survey.key.json", "survey public key file")
	kind := fs.Uint("type", uint(fhe.KindRating), "question type: 0 single, 1 multiple, 2 text, 3 rating")
	options := fs.String("options", "", "comma separated options of a choice question")
	maxRating := fs.Uint("max", 0, "maxRating of a rating question")
	answer := fs.String("answer", "", "answer; comma separated for multiple choice")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := readKey(*keyPath)
	if err != nil {
		return err
	}
	value, err := fhe.EncodeAnswer(uint8(*kind), splitList(*options), uint32(*maxRating), answerList(uint8(*kind), *answer))
	if err != nil {
		return err
	}
	params, pk, err := key.Decode()
	if err != nil {
		return err
	}
	ct, err := fhe.EncryptB64(params, pk, value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, ct)
	return err
}

func attest(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("attest", flag.ContinueOnError)
	verifier := fs.String("verifier", "", "verifier private key hex")
	surveyID := fs.Uint64("survey", 0, "survey id")
	questionID := fs.Uint64("question", 0, "question id")
	client := fs.String("client", "", "respondent client id (WhoAmI)")
	ctPath := fs.String("ct", "", "file holding the base64 ciphertext")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *client == "" || *ctPath == "" {
		return errors.New("attest: -client and -ct are required")
	}

	priv, err := fhe.ParseVerifierPrivate(*verifier)
	if err != nil {
		return err
	}
	b64, err := os.ReadFile(*ctPath)
	if err != nil {
		return err
	}
	ct, err := fhe.DecodeB64(string(b64))
	if err != nil {
		return err
	}
	proof := fhe.SignInput(priv, fhe.InputDigest(*surveyID, *questionID, *client, ct))
	_, err = fmt.Fprintln(out, proof)
	return err
}

func decrypt(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	keyPath := fs.String("key", "survey.key.json", "survey public key file")
	secretPath := fs.String("secret", "survey.sk", "survey secret key file")
	statsPath := fs.String("stats", "", "GetQuestionStats output (JSON)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *statsPath == "" {
		return errors.New("decrypt: -stats is required")
	}

	key, err := readKey(*keyPath)
	if err != nil {
		return err
	}
	skB64, err := os.ReadFile(*secretPath)
	if err != nil {
		return err
	}
	sk, err := fhe.ParseSecretKey(key.Params, string(skB64))
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(*statsPath)
	if err != nil {
		return err
	}
	var stats struct {
		Ciphertext string `json:"ciphertext"`
		Responses  uint64 `json:"responses"`
	}
	if err := json.Unmarshal(raw, &stats); err != nil {
		return fmt.Errorf("stats json: %w", err)
	}
	if stats.Ciphertext == "" {
		_, err = fmt.Fprintln(out, 0)
		return err
	}
	ct, err := fhe.DecodeB64(stats.Ciphertext)
	if err != nil {
		return err
	}
	params, err := key.Params.Build()
	if err != nil {
		return err
	}
	v, err := fhe.Decrypt(params, sk, ct)
	if err != nil {
		return err
	}
	log.Debugf("decrypted aggregate over %d responses", stats.Responses)
	_, err = fmt.Fprintln(out, v)
	return err
}

func readKey(path string) (*fhe.SurveyKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return fhe.ParseSurveyKey(string(raw))
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// answerList keeps text answers whole; every other kind is comma separated.
func answerList(kind uint8, s string) []string {
	if kind == fhe.KindText {
		return []string{s}
	}
	return splitList(s)
}
