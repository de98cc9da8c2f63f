package main

import "errors"

// Revert reasons. The texts travel back to the client unchanged, so they
// keep the sentence form the frontend displays.
var (
	ErrNotCreator         = errors.New("Only survey creator can perform this action")
	ErrNotOwner           = errors.New("Only contract owner can perform this action")
	ErrNotInitialised     = errors.New("Contract not initialised")
	ErrAlreadyInitialised = errors.New("Contract already initialised")
	ErrInvalidInput       = errors.New("Invalid input")

	ErrSurveyNotFound   = errors.New("Survey does not exist")
	ErrQuestionNotFound = errors.New("Question does not exist")
	ErrResponseNotFound = errors.New("Response does not exist")
	ErrShareNotFound    = errors.New("Share id does not exist")

	ErrSurveyInactive   = errors.New("Survey is not active")
	ErrSurveyExpired    = errors.New("Survey has expired")
	ErrNoAccess         = errors.New("No permission to respond to this survey")
	ErrQuestionMismatch = errors.New("Question does not belong to this survey")
	ErrAlreadyResponded = errors.New("Already responded to this question")

	ErrKeyNotSet         = errors.New("Survey encryption key not set")
	ErrKeyLocked         = errors.New("Survey encryption key cannot change after responses")
	ErrVerifierNotSet    = errors.New("Input verifier key not set")
	ErrInvalidProof      = errors.New("Invalid input proof")
	ErrInvalidCiphertext = errors.New("Invalid encrypted input")
)
