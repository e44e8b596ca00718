package service

import (
	"payment-gateway-ledger/internal/client"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/repository"

	"github.com/zeebo/errs"
)

var (
	// ErrVerification is returned when an inbound webhook fails
	// authentication. Nothing is dispatched.
	ErrVerification = errs.Class("webhook verification")
	// ErrValidation marks malformed or incomplete input.
	ErrValidation = errs.Class("validation")
	// ErrConfiguration marks catalog rows that cannot be sold as configured.
	ErrConfiguration = errs.Class("plan configuration")
)

func kindOf(err error) dto.ErrorKind {
	switch {
	case err == nil:
		return dto.ErrorKindNone
	case ErrValidation.Has(err), ErrConfiguration.Has(err):
		return dto.ErrorKindValidation
	case repository.ErrNotFound.Has(err), client.ErrGatewayResourceMissing.Has(err):
		return dto.ErrorKindNotFound
	case client.ErrGateway.Has(err):
		return dto.ErrorKindDownstream
	case repository.ErrStore.Has(err):
		return dto.ErrorKindStore
	default:
		return dto.ErrorKindInternal
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}

func failure(transactionID string, kind dto.ErrorKind, message string) dto.Result {
	return dto.Result{
		Success:       false,
		TransactionID: transactionID,
		Error:         message,
		Outcome:       dto.OutcomeFailed,
		Kind:          kind,
	}
}

func failureFromErr(transactionID string, err error) dto.Result {
	return failure(transactionID, kindOf(err), err.Error())
}

func processed(transactionID string, tokens *int64) dto.Result {
	return dto.Result{
		Success:       true,
		TransactionID: transactionID,
		TokensAwarded: tokens,
		Outcome:       dto.OutcomeProcessed,
	}
}

// acknowledged is a successful result carrying an informational message.
func acknowledged(transactionID string, outcome dto.Outcome, message string) dto.Result {
	return dto.Result{
		Success:       true,
		TransactionID: transactionID,
		Error:         message,
		Outcome:       outcome,
	}
}
