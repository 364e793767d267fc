package store

import "errors"

var (
	ErrClanNotFound       = errors.New("clan not found")
	ErrClanExists         = errors.New("clan already exists")
	ErrWarNotFound        = errors.New("war not found")
	ErrInsufficientFunds  = errors.New("insufficient spendable points")
	ErrInsufficientEscrow = errors.New("locked points below stake")
	ErrConflictExists     = errors.New("an open war already exists for this pair")
	ErrAlreadyAtWar       = errors.New("clan is already at war")
	ErrStaleWar           = errors.New("war changed since it was read")
	ErrRosterFull         = errors.New("clan roster is full")
	ErrRecruitmentClosed  = errors.New("clan recruitment is closed")
	ErrAlreadyMember      = errors.New("user is already on the roster")
	ErrNotMember          = errors.New("user is not a clan member")
)
