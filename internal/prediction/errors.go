package prediction

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStake        = errors.New("stake amount out of accepted range")
	ErrMatchNotBettable    = errors.New("match not available for betting")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOddsUnavailable     = errors.New("odds not available for this outcome")
	ErrNotFound            = errors.New("not found")
)

// DuplicateError é retornado quando já existe prediction do usuário para a
// partida; carrega o id existente para o caller poder exibi-la.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("prediction already exists for this match (id=%s)", e.ExistingID)
}

// IsDuplicate extrai um DuplicateError de uma cadeia de erros.
func IsDuplicate(err error) (*DuplicateError, bool) {
	var d *DuplicateError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
