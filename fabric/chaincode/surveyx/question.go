package main

import (
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

// AddQuestion appends a question to a survey and returns its id.
// Options apply to choice questions and maxRating to rating questions;
// the other is ignored.
func (c *SurveyXContract) AddQuestion(
	ctx contractapi.TransactionContextInterface,
	surveyID uint64,
	questionType uint8,
	questionText string,
	options []string,
	maxRating uint32,
	isRequired bool,
) (uint64, error) {
	s, _, err := requireCreator(ctx, surveyID)
	if err != nil {
		return 0, err
	}

	qt := QuestionType(questionType)
	in := questionInput{
		QuestionType: questionType,
		QuestionText: strings.TrimSpace(questionText),
	}
	if qt.isChoice() {
		in.Options = options
	}
	if err := validateInput(in); err != nil {
		return 0, err
	}
	p, err := getParams(ctx)
	if err != nil {
		return 0, err
	}
	if err := validateQuestionShape(qt, in.Options, maxRating, p); err != nil {
		return 0, err
	}

	id, err := nextID(ctx, counterQuestion)
	if err != nil {
		return 0, err
	}
	q := &Question{
		ID:           id,
		SurveyID:     surveyID,
		QuestionType: questionType,
		QuestionText: in.QuestionText,
		Options:      []string{},
		IsRequired:   isRequired,
	}
	switch {
	case qt.isChoice():
		q.Options = append(q.Options, in.Options...)
	case qt == Rating:
		q.MaxRating = maxRating
	}
	if err := putJSON(ctx, idKey(keyQuestionPfx, id), q); err != nil {
		return 0, err
	}
	if err := appendID(ctx, idKey(keySurveyQsPfx, surveyID), id); err != nil {
		return 0, err
	}
	s.QuestionCount++
	if err := putJSON(ctx, idKey(keySurveyPrefix, surveyID), s); err != nil {
		return 0, err
	}

	emit(ctx, p, eventQuestionAdded, map[string]any{
		"surveyId":     surveyID,
		"questionId":   id,
		"questionType": qt.String(),
	})
	return id, nil
}

// GetQuestion returns the full question record.
func (c *SurveyXContract) GetQuestion(ctx contractapi.TransactionContextInterface, questionID uint64) (*Question, error) {
	return loadQuestion(ctx, questionID)
}

// GetQuestionData returns the question fields without its options.
func (c *SurveyXContract) GetQuestionData(ctx contractapi.TransactionContextInterface, questionID uint64) (*QuestionData, error) {
	q, err := loadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return &QuestionData{
		SurveyID:     q.SurveyID,
		QuestionType: q.QuestionType,
		QuestionText: q.QuestionText,
		MaxRating:    q.MaxRating,
		IsRequired:   q.IsRequired,
	}, nil
}

// GetQuestionOptions returns the answer options of a question in order.
func (c *SurveyXContract) GetQuestionOptions(ctx contractapi.TransactionContextInterface, questionID uint64) ([]string, error) {
	q, err := loadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return q.Options, nil
}

// GetSurveyQuestions lists the question ids of a survey in insertion order.
func (c *SurveyXContract) GetSurveyQuestions(ctx contractapi.TransactionContextInterface, surveyID uint64) ([]uint64, error) {
	return readIDs(ctx, idKey(keySurveyQsPfx, surveyID))
}

// GetQuestionCounter returns the number of questions created so far.
func (c *SurveyXContract) GetQuestionCounter(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return readCounter(ctx, counterQuestion)
}
