package fhe

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Question kinds as stored on the ledger.
const (
	KindSingleChoice uint8 = iota
	KindMultipleChoice
	KindText
	KindRating
)

// EncodeAnswer maps an answer to the integer that gets encrypted:
// single choice is the option index + 1, multiple choice is the sum of
// index + 1 over the picked options, text is its length in characters and
// rating is the value itself.
func EncodeAnswer(kind uint8, options []string, maxRating uint32, answers []string) (uint64, error) {
	switch kind {
	case KindSingleChoice:
		if len(answers) != 1 {
			return 0, fmt.Errorf("single choice takes exactly one answer, got %d", len(answers))
		}
		i, err := optionIndex(options, answers[0])
		if err != nil {
			return 0, err
		}
		return uint64(i + 1), nil
	case KindMultipleChoice:
		if len(answers) == 0 {
			return 0, fmt.Errorf("multiple choice needs at least one answer")
		}
		seen := make(map[int]bool, len(answers))
		var sum uint64
		for _, a := range answers {
			i, err := optionIndex(options, a)
			if err != nil {
				return 0, err
			}
			if seen[i] {
				return 0, fmt.Errorf("option %q picked twice", a)
			}
			seen[i] = true
			sum += uint64(i + 1)
		}
		return sum, nil
	case KindText:
		return uint64(utf8.RuneCountInString(strings.Join(answers, ","))), nil
	case KindRating:
		if len(answers) != 1 {
			return 0, fmt.Errorf("rating takes exactly one answer, got %d", len(answers))
		}
		v, err := strconv.ParseUint(strings.TrimSpace(answers[0]), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("rating %q: %w", answers[0], err)
		}
		if v < 1 || v > uint64(maxRating) {
			return 0, fmt.Errorf("rating %d outside [1,%d]", v, maxRating)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("unknown question type %d", kind)
	}
}

func optionIndex(options []string, answer string) (int, error) {
	answer = strings.TrimSpace(answer)
	for i, o := range options {
		if o == answer {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%q is not one of the options", answer)
}
