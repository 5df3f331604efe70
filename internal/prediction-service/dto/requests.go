package dto

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type PlacePredictionRequest struct {
	UserID      string          `json:"userId" validate:"required"`
	MatchID     string          `json:"matchId" validate:"required"`
	Outcome     string          `json:"outcome" validate:"required,oneof=HOME DRAW AWAY"`
	StakeAmount decimal.Decimal `json:"stake_amount"`
}

func (r *PlacePredictionRequest) Validate() error {
	return validate.Struct(r)
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
