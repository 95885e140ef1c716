package services

import "errors"

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrAlreadyMarked   = errors.New("attendance already recorded for this date")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoSnapshot      = errors.New("no enrollment snapshot stored")
)
