package response

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/transport"
)

func interpretFT(t *testing.T, status int, body string) *Outcome {
	t.Helper()
	out, err := Interpret(gateway.DialectFundsTransfer, &transport.Response{StatusCode: status, Body: []byte(body)})
	if err != nil {
		t.Fatalf("unexpected interpret error: %v", err)
	}
	return out
}

func TestInterpretApproval(t *testing.T) {
	out := interpretFT(t, http.StatusOK,
		`{"transactionIdentifier":234567891234567,"actionCode":"00","approvalCode":"A1B2C3"}`)

	if !out.Success {
		t.Fatal("action code 00 must be success")
	}
	if out.ResultCode != "00" {
		t.Fatalf("result code %q", out.ResultCode)
	}
	if out.ApprovalCode != "A1B2C3" {
		t.Fatalf("approval code %q", out.ApprovalCode)
	}
	if out.NetworkTransactionID != "234567891234567" {
		t.Fatalf("network transaction id %q", out.NetworkTransactionID)
	}
}

func TestInterpretAllApprovedCodes(t *testing.T) {
	for _, code := range []string{"00", "08", "10", "85"} {
		out := interpretFT(t, http.StatusOK, `{"actionCode":"`+code+`"}`)
		if !out.Success {
			t.Fatalf("code %s must be success", code)
		}
	}
}

func TestInterpretDecline(t *testing.T) {
	out := interpretFT(t, http.StatusOK, `{"actionCode":"51"}`)

	if out.Success {
		t.Fatal("action code 51 must be a decline")
	}
	if out.ResultCode != "51" {
		t.Fatalf("result code %q", out.ResultCode)
	}
	if out.ErrorDetail != "insufficient funds" {
		t.Fatalf("error detail %q", out.ErrorDetail)
	}
}

// A business decline arriving on an HTTP error status is still a normal
// outcome; the transport status never overrides the embedded result code.
func TestInterpretDeclineOnHTTPError(t *testing.T) {
	out := interpretFT(t, http.StatusBadRequest, `{"actionCode":"14","errorMessage":"invalid account number"}`)

	if out.Success {
		t.Fatal("expected decline")
	}
	if out.ResultCode != "14" {
		t.Fatalf("result code %q", out.ResultCode)
	}
}

func TestInterpretUnknownCodePreserved(t *testing.T) {
	out := interpretFT(t, http.StatusOK, `{"actionCode":"73"}`)

	if out.Success {
		t.Fatal("unknown code must never be success")
	}
	if out.ResultCode != "73" {
		t.Fatalf("raw code must be preserved, got %q", out.ResultCode)
	}
	if !strings.Contains(out.ErrorDetail, "73") {
		t.Fatalf("error detail should carry the raw code: %q", out.ErrorDetail)
	}
}

func TestInterpretMalformedBody(t *testing.T) {
	_, err := Interpret(gateway.DialectFundsTransfer,
		&transport.Response{StatusCode: http.StatusOK, Body: []byte("<html>gateway error</html>")})
	if !errors.Is(err, gateway.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestInterpretEmptyBody(t *testing.T) {
	_, err := Interpret(gateway.DialectFundsTransfer,
		&transport.Response{StatusCode: http.StatusOK})
	if !errors.Is(err, gateway.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for empty 200 body, got %v", err)
	}
}

func TestInterpretAcceptedEmptyBodyIsPending(t *testing.T) {
	out, err := Interpret(gateway.DialectFundsTransfer,
		&transport.Response{StatusCode: http.StatusAccepted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Pending || out.Success {
		t.Fatalf("expected pending outcome, got %+v", out)
	}
}

func TestInterpretAuthorizationDialect(t *testing.T) {
	body := `{
		"messageIdentification": {"correlationId": "8d1c473df3394fb0acd32"},
		"body": {"transactionId": "9988776655", "actionCode": "00", "approvalCode": "Z9Y8X7"}
	}`
	out, err := Interpret(gateway.DialectAuthorization,
		&transport.Response{StatusCode: http.StatusOK, Body: []byte(body)})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if !out.Success || out.ApprovalCode != "Z9Y8X7" || out.NetworkTransactionID != "9988776655" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestInterpretAuthorizationDecline(t *testing.T) {
	body := `{"body": {"actionCode": "05", "errorDetail": "do not honor"}}`
	out, err := Interpret(gateway.DialectAuthorization,
		&transport.Response{StatusCode: http.StatusOK, Body: []byte(body)})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if out.Success || out.ResultCode != "05" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestInterpretAuthorizationTopLevelError(t *testing.T) {
	body := `{"errorCode": "96", "errorMessage": "system malfunction"}`
	out, err := Interpret(gateway.DialectAuthorization,
		&transport.Response{StatusCode: http.StatusInternalServerError, Body: []byte(body)})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if out.Success || out.ResultCode != "96" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.ErrorDetail != "system malfunction" {
		t.Fatalf("error detail %q", out.ErrorDetail)
	}
}
