package request

import (
	"encoding/json"
	"time"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/models"
)

// ReverseFundsPath is the reverse-funds endpoint.
const ReverseFundsPath = "/visadirect/fundstransfer/v1/reversefundstransactions"

// originalDataElements carries the references of the transaction being
// reversed; the network matches the reversal against them.
type originalDataElements struct {
	SystemsTraceAuditNumber  int    `json:"systemsTraceAuditNumber"`
	RetrievalReferenceNumber string `json:"retrievalReferenceNumber"`
	TransmissionDateTime     string `json:"transmissionDateTime,omitempty"`
}

// reverseFundsPayload is the flat funds-transfer object for a reversal.
type reverseFundsPayload struct {
	SystemsTraceAuditNumber  int                  `json:"systemsTraceAuditNumber"`
	RetrievalReferenceNumber string               `json:"retrievalReferenceNumber"`
	LocalTransactionDateTime string               `json:"localTransactionDateTime"`
	TransactionIdentifier    string               `json:"transactionIdentifier"`
	Amount                   string               `json:"amount"`
	TransactionCurrencyCode  string               `json:"transactionCurrencyCode"`
	OriginalDataElements     originalDataElements `json:"originalDataElements"`
	AcquiringBin             string               `json:"acquiringBin"`
	AcquirerCountryCode      string               `json:"acquirerCountryCode"`
	MerchantCategoryCode     string               `json:"merchantCategoryCode"`
	CardAcceptor             cardAcceptor         `json:"cardAcceptor"`
}

// ReverseFundsBuilder assembles reversal requests for prior funds transfers.
type ReverseFundsBuilder struct {
	identity Identity
}

func NewReverseFundsBuilder(identity Identity) *ReverseFundsBuilder {
	return &ReverseFundsBuilder{identity: identity}
}

func (b *ReverseFundsBuilder) Kind() models.OperationKind { return models.OpReverseFunds }

func (b *ReverseFundsBuilder) Build(in Input) (*Built, error) {
	missing := validateCore(in)
	if in.NetworkTransactionID == "" {
		missing = append(missing, "networkTransactionId")
	}
	if in.OriginalTraceNumber == 0 {
		missing = append(missing, "originalTraceNumber")
	}
	if in.OriginalRetrievalReference == "" {
		missing = append(missing, "originalRetrievalReference")
	}
	if len(missing) > 0 {
		return nil, gateway.NewValidationError(missing...)
	}

	now := time.Now()
	trace, rrn := resolveReferences(in, now)
	currencyCode, _ := NumericCurrencyCode(in.Currency)

	payload := reverseFundsPayload{
		SystemsTraceAuditNumber:  trace,
		RetrievalReferenceNumber: rrn,
		LocalTransactionDateTime: now.Format(localDateTimeLayout),
		TransactionIdentifier:    in.NetworkTransactionID,
		Amount:                   in.Amount,
		TransactionCurrencyCode:  currencyCode,
		OriginalDataElements: originalDataElements{
			SystemsTraceAuditNumber:  in.OriginalTraceNumber,
			RetrievalReferenceNumber: in.OriginalRetrievalReference,
		},
		AcquiringBin:         b.identity.AcquiringBIN,
		AcquirerCountryCode:  b.identity.AcquirerCountryCode,
		MerchantCategoryCode: b.identity.MerchantCategoryCode,
		CardAcceptor:         b.identity.acceptor(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Built{
		Method:             "POST",
		Path:               ReverseFundsPath,
		Payload:            body,
		Dialect:            gateway.DialectFundsTransfer,
		TraceNumber:        trace,
		RetrievalReference: rrn,
	}, nil
}
