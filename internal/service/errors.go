package service

import "errors"

var (
	// ErrEventNotFound indicates the event cannot be located.
	ErrEventNotFound = errors.New("event not found")
	// ErrQuestionNotFound indicates the question does not exist within the event.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrForbidden indicates the caller does not own the resource being changed.
	ErrForbidden = errors.New("forbidden")
	// ErrEventNotActive indicates a submission arrived outside the event window.
	ErrEventNotActive = errors.New("event is not accepting submissions")
	// ErrInvalidSource indicates the submitted code is not text.
	ErrInvalidSource = errors.New("submitted code must be plain text")
	// ErrLeaderboardUpdateFailed indicates an accepted submission was stored but not yet credited.
	ErrLeaderboardUpdateFailed = errors.New("leaderboard update failed")
	// ErrGeneratorUnavailable indicates question generation is not configured.
	ErrGeneratorUnavailable = errors.New("question generator unavailable")
	// ErrEvaluatorUnavailable indicates the AI evaluator is not configured.
	ErrEvaluatorUnavailable = errors.New("evaluator unavailable")
	// ErrUserNotFound indicates no profile is stored for the caller.
	ErrUserNotFound = errors.New("user not found")
)
