package consts

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrRuleNotFound     = errors.New("rule not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInternalError    = errors.New("internal error")

	ErrDBNotFound                = errors.New("not found")
	ErrDBUniqueViolation         = errors.New("unique violation")
	ErrDBCommitTransactionFailed = errors.New("commit failed")
	ErrDBBeginTransactionFailed  = errors.New("start transaction failed")
	ErrDBInsertFailed            = errors.New("insert failed")
)
