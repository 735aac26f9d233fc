package config

import "fmt"

type CacheKeyStruct struct{}

// QuizPayloadKey holds the cached question set and timer of a quiz.
func (CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizAnswerKey holds the question-number → correct-option hash of a quiz.
func (CacheKeyStruct) QuizAnswerKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:key", quizID)
}

// AttemptAnswersKey holds the autosaved answers of a live attempt.
func (CacheKeyStruct) AttemptAnswersKey(userID, quizID string) string {
	return fmt.Sprintf("user:%s:quiz:%s:answers", userID, quizID)
}

// AttemptStartKey holds the Unix start time of a live attempt.
func (CacheKeyStruct) AttemptStartKey(userID, quizID string) string {
	return fmt.Sprintf("user:%s:quiz:%s:started_at", userID, quizID)
}

// AuthChannel is the Pub/Sub channel carrying auth-state changes of a user.
func (CacheKeyStruct) AuthChannel(userID string) string {
	return fmt.Sprintf("user:%s:auth", userID)
}

var CacheKey = CacheKeyStruct{}
