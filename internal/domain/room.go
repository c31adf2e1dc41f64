package domain

import "errors"

const MaxInterviewIDLen = 128

var ErrInvalidInterview = errors.New("invalid interview id")

// InterviewID keys a broadcast room.
type InterviewID string

type Room struct {
	ID InterviewID
}

func ParseInterviewID(raw string) (InterviewID, error) {
	if raw == "" || len(raw) > MaxInterviewIDLen {
		return "", ErrInvalidInterview
	}
	return InterviewID(raw), nil
}
