// Package response maps wire result codes onto a normalized outcome. The
// mapping is table-driven; unknown codes are treated as failures with the raw
// code preserved for audit, never silently as success. Business declines are
// normal outcomes, not errors: the interpreter only returns an error for
// malformed, unparseable bodies.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/transport"
)

// Outcome is the normalized result of one gateway exchange.
type Outcome struct {
	Success              bool   `json:"success"`
	ResultCode           string `json:"resultCode"`
	ApprovalCode         string `json:"approvalCode,omitempty"`
	NetworkTransactionID string `json:"networkTransactionId,omitempty"`
	ErrorDetail          string `json:"errorDetail,omitempty"`

	// Pending is set when the network acknowledged the submit without a
	// final result; the transaction stays in processing until a webhook
	// delivers the terminal outcome.
	Pending bool `json:"pending,omitempty"`
}

// approvedCodes is the fixed set of action codes that mean approval.
var approvedCodes = map[string]string{
	"00": "approved",
	"08": "honor with identification",
	"10": "partial approval",
	"85": "no reason to decline",
}

// declineCodes is the fixed enumerated set of known decline/error codes.
// Anything outside both tables is a failure with the raw code preserved.
var declineCodes = map[string]string{
	"05": "do not honor",
	"12": "invalid transaction",
	"13": "invalid amount",
	"14": "invalid account number",
	"51": "insufficient funds",
	"54": "expired card",
	"57": "transaction not permitted to cardholder",
	"59": "suspected fraud",
	"61": "exceeds withdrawal amount limit",
	"62": "restricted card",
	"91": "issuer unavailable",
	"96": "system malfunction",
}

// flat funds-transfer dialect reply.
type fundsTransferReply struct {
	TransactionIdentifier json.Number `json:"transactionIdentifier"`
	ActionCode            string      `json:"actionCode"`
	ApprovalCode          string      `json:"approvalCode"`
	ResponseCode          string      `json:"responseCode"`
	ErrorCode             string      `json:"errorCode"`
	ErrorMessage          string      `json:"errorMessage"`
}

// nested authorization dialect reply.
type authorizationReply struct {
	MessageIdentification struct {
		CorrelationID string `json:"correlationId"`
	} `json:"messageIdentification"`
	Body struct {
		TransactionID string `json:"transactionId"`
		ActionCode    string `json:"actionCode"`
		ApprovalCode  string `json:"approvalCode"`
		ErrorDetail   string `json:"errorDetail"`
	} `json:"body"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Interpret normalizes one transport response. HTTP 4xx/5xx bodies are still
// parsed: the counterpart embeds business result codes in them.
func Interpret(dialect gateway.Dialect, resp *transport.Response) (*Outcome, error) {
	if len(resp.Body) == 0 {
		if resp.StatusCode == http.StatusAccepted {
			return &Outcome{Pending: true}, nil
		}
		return nil, fmt.Errorf("empty body with HTTP %d: %w", resp.StatusCode, gateway.ErrMalformedResponse)
	}

	if dialect == gateway.DialectAuthorization {
		return interpretAuthorization(resp)
	}
	return interpretFundsTransfer(resp)
}

func interpretFundsTransfer(resp *transport.Response) (*Outcome, error) {
	var reply fundsTransferReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, fmt.Errorf("parsing funds-transfer reply (HTTP %d): %v: %w",
			resp.StatusCode, err, gateway.ErrMalformedResponse)
	}

	code := reply.ActionCode
	if code == "" {
		code = reply.ErrorCode
	}
	out := classifyCode(code)
	out.ApprovalCode = reply.ApprovalCode
	out.NetworkTransactionID = reply.TransactionIdentifier.String()
	if out.NetworkTransactionID == "" || out.NetworkTransactionID == "0" {
		out.NetworkTransactionID = ""
	}
	if reply.ErrorMessage != "" {
		out.ErrorDetail = reply.ErrorMessage
	}
	if resp.StatusCode == http.StatusAccepted && code == "" {
		out.Pending = true
		out.ErrorDetail = ""
	}
	return out, nil
}

func interpretAuthorization(resp *transport.Response) (*Outcome, error) {
	var reply authorizationReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, fmt.Errorf("parsing authorization reply (HTTP %d): %v: %w",
			resp.StatusCode, err, gateway.ErrMalformedResponse)
	}

	code := reply.Body.ActionCode
	if code == "" {
		code = reply.ErrorCode
	}
	out := classifyCode(code)
	out.ApprovalCode = reply.Body.ApprovalCode
	out.NetworkTransactionID = reply.Body.TransactionID
	if reply.Body.ErrorDetail != "" {
		out.ErrorDetail = reply.Body.ErrorDetail
	} else if reply.ErrorMessage != "" {
		out.ErrorDetail = reply.ErrorMessage
	}
	return out, nil
}

// classifyCode resolves a raw result code against the fixed tables.
func classifyCode(code string) *Outcome {
	if _, ok := approvedCodes[code]; ok {
		return &Outcome{Success: true, ResultCode: code}
	}
	if detail, ok := declineCodes[code]; ok {
		return &Outcome{Success: false, ResultCode: code, ErrorDetail: detail}
	}
	return &Outcome{
		Success:     false,
		ResultCode:  code,
		ErrorDetail: fmt.Sprintf("unrecognized result code %q", code),
	}
}
