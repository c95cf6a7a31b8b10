package repositories

import "errors"

var (
	ErrValidation      = errors.New("invalid input")
	ErrPermission      = errors.New("permission denied")
	ErrLastAdmin       = errors.New("room must keep at least one admin")
	ErrAlreadyMember   = errors.New("user already a member")
	ErrNotMember       = errors.New("user not a member")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
)
