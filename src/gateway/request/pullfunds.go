package request

import (
	"encoding/json"
	"time"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/mle"
	"github.com/username/cardgate/backend/src/models"
)

// PullFundsPath is the pull-funds (debit from card) endpoint.
const PullFundsPath = "/visadirect/fundstransfer/v1/pullfundstransactions"

// pullFundsPayload is the flat funds-transfer object for a pull.
type pullFundsPayload struct {
	SystemsTraceAuditNumber    int          `json:"systemsTraceAuditNumber"`
	RetrievalReferenceNumber   string       `json:"retrievalReferenceNumber"`
	LocalTransactionDateTime   string       `json:"localTransactionDateTime"`
	Amount                     string       `json:"amount"`
	TransactionCurrencyCode    string       `json:"transactionCurrencyCode"`
	SenderPrimaryAccountNumber string       `json:"senderPrimaryAccountNumber"`
	SenderCardExpiryDate       string       `json:"senderCardExpiryDate"`
	SenderName                 string       `json:"senderName,omitempty"`
	BusinessApplicationID      string       `json:"businessApplicationId"`
	AcquiringBin               string       `json:"acquiringBin"`
	AcquirerCountryCode        string       `json:"acquirerCountryCode"`
	MerchantCategoryCode       string       `json:"merchantCategoryCode"`
	CardAcceptor               cardAcceptor `json:"cardAcceptor"`
	EncryptionKeyID            string       `json:"encryptionKeyId,omitempty"`
}

// PullFundsBuilder assembles pull-funds (account funding) requests.
type PullFundsBuilder struct {
	identity  Identity
	encryptor *mle.Encryptor
}

func NewPullFundsBuilder(identity Identity, encryptor *mle.Encryptor) *PullFundsBuilder {
	return &PullFundsBuilder{identity: identity, encryptor: encryptor}
}

func (b *PullFundsBuilder) Kind() models.OperationKind { return models.OpPullFunds }

func (b *PullFundsBuilder) Build(in Input) (*Built, error) {
	missing := validateCore(in)
	if in.Card.AccountNumber == "" {
		missing = append(missing, "card.accountNumber")
	}
	if in.Card.ExpiryDate == "" {
		missing = append(missing, "card.expiryDate")
	}
	if len(missing) > 0 {
		return nil, gateway.NewValidationError(missing...)
	}

	now := time.Now()
	trace, rrn := resolveReferences(in, now)
	currencyCode, _ := NumericCurrencyCode(in.Currency)

	pan, cleartext, err := protectPAN(b.encryptor, in.Card.AccountNumber)
	if err != nil {
		return nil, err
	}

	payload := pullFundsPayload{
		SystemsTraceAuditNumber:    trace,
		RetrievalReferenceNumber:   rrn,
		LocalTransactionDateTime:   now.Format(localDateTimeLayout),
		Amount:                     in.Amount,
		TransactionCurrencyCode:    currencyCode,
		SenderPrimaryAccountNumber: pan,
		SenderCardExpiryDate:       in.Card.ExpiryDate,
		SenderName:                 in.Card.HolderName,
		BusinessApplicationID:      "AA",
		AcquiringBin:               b.identity.AcquiringBIN,
		AcquirerCountryCode:        b.identity.AcquirerCountryCode,
		MerchantCategoryCode:       b.identity.MerchantCategoryCode,
		CardAcceptor:               b.identity.acceptor(),
	}
	if !cleartext {
		payload.EncryptionKeyID = b.encryptor.KeyID()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Built{
		Method:             "POST",
		Path:               PullFundsPath,
		Payload:            body,
		Dialect:            gateway.DialectFundsTransfer,
		TraceNumber:        trace,
		RetrievalReference: rrn,
		CleartextPAN:       cleartext,
	}, nil
}
