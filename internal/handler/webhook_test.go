package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"payment-gateway-ledger/internal/dto"
	"payment-gateway-ledger/internal/service"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type stubWebhookService struct {
	result    dto.Result
	err       error
	signature string
	payload   []byte
}

func (s *stubWebhookService) HandleWebhook(ctx context.Context, signature string, payload []byte) (dto.Result, error) {
	s.signature = signature
	s.payload = payload
	return s.result, s.err
}

func postWebhook(t *testing.T, svc service.WebhookService, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(body))
	req.Header.Set(service.SignatureHeader, "t=1,v1=abc")
	rec := httptest.NewRecorder()

	require.NoError(t, NewWebhookHandler(svc).StripeWebhook(e.NewContext(req, rec)))
	return rec
}

func TestStripeWebhookStatusCodes(t *testing.T) {
	for _, tc := range []struct {
		name   string
		result dto.Result
		err    error
		status int
	}{
		{"processed", dto.Result{Success: true, TransactionID: "T1", Outcome: dto.OutcomeProcessed}, nil, http.StatusOK},
		{"ignored", dto.Result{Success: true, Outcome: dto.OutcomeIgnored}, nil, http.StatusOK},
		{"validation failure", dto.Result{Success: false, Kind: dto.ErrorKindValidation}, nil, http.StatusOK},
		{"partial failure", dto.Result{Success: false, Kind: dto.ErrorKindPartial}, nil, http.StatusOK},
		{"store failure", dto.Result{Success: false, Kind: dto.ErrorKindStore}, nil, http.StatusInternalServerError},
		{"downstream failure", dto.Result{Success: false, Kind: dto.ErrorKindDownstream}, nil, http.StatusInternalServerError},
		{"bad signature", dto.Result{}, service.ErrVerification.New("bad signature"), http.StatusUnauthorized},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubWebhookService{result: tc.result, err: tc.err}
			rec := postWebhook(t, svc, `{"id":"evt_1"}`)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "t=1,v1=abc", svc.signature)
			require.JSONEq(t, `{"id":"evt_1"}`, string(svc.payload))
		})
	}
}

func TestStripeWebhookBody(t *testing.T) {
	tokens := int64(500)
	svc := &stubWebhookService{result: dto.Result{Success: true, TransactionID: "T1", TokensAwarded: &tokens, Outcome: dto.OutcomeProcessed}}

	rec := postWebhook(t, svc, `{}`)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["success"])
	require.Equal(t, "T1", body["transactionId"])
	require.EqualValues(t, 500, body["tokensAwarded"])
	require.Equal(t, "processed", body["outcome"])
}
