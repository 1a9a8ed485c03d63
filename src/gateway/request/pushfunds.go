package request

import (
	"encoding/json"
	"time"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/mle"
	"github.com/username/cardgate/backend/src/models"
)

// PushFundsPath is the push-funds (credit to card) endpoint.
const PushFundsPath = "/visadirect/fundstransfer/v1/pushfundstransactions"

// pushFundsPayload is the flat funds-transfer object for a push.
type pushFundsPayload struct {
	SystemsTraceAuditNumber       int          `json:"systemsTraceAuditNumber"`
	RetrievalReferenceNumber      string       `json:"retrievalReferenceNumber"`
	LocalTransactionDateTime      string       `json:"localTransactionDateTime"`
	Amount                        string       `json:"amount"`
	TransactionCurrencyCode       string       `json:"transactionCurrencyCode"`
	RecipientPrimaryAccountNumber string       `json:"recipientPrimaryAccountNumber"`
	RecipientName                 string       `json:"recipientName,omitempty"`
	SenderName                    string       `json:"senderName,omitempty"`
	SourceOfFundsCode             string       `json:"sourceOfFundsCode"`
	BusinessApplicationID         string       `json:"businessApplicationId"`
	AcquiringBin                  string       `json:"acquiringBin"`
	AcquirerCountryCode           string       `json:"acquirerCountryCode"`
	MerchantCategoryCode          string       `json:"merchantCategoryCode"`
	CardAcceptor                  cardAcceptor `json:"cardAcceptor"`
	EncryptionKeyID               string       `json:"encryptionKeyId,omitempty"`
}

// PushFundsBuilder assembles push-funds (original credit) requests.
type PushFundsBuilder struct {
	identity  Identity
	encryptor *mle.Encryptor
}

func NewPushFundsBuilder(identity Identity, encryptor *mle.Encryptor) *PushFundsBuilder {
	return &PushFundsBuilder{identity: identity, encryptor: encryptor}
}

func (b *PushFundsBuilder) Kind() models.OperationKind { return models.OpPushFunds }

func (b *PushFundsBuilder) Build(in Input) (*Built, error) {
	missing := validateCore(in)
	if in.Card.AccountNumber == "" {
		missing = append(missing, "card.accountNumber")
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

	payload := pushFundsPayload{
		SystemsTraceAuditNumber:       trace,
		RetrievalReferenceNumber:      rrn,
		LocalTransactionDateTime:      now.Format(localDateTimeLayout),
		Amount:                        in.Amount,
		TransactionCurrencyCode:       currencyCode,
		RecipientPrimaryAccountNumber: pan,
		RecipientName:                 in.Card.HolderName,
		SenderName:                    in.SenderName,
		SourceOfFundsCode:             "05",
		BusinessApplicationID:         "AA",
		AcquiringBin:                  b.identity.AcquiringBIN,
		AcquirerCountryCode:           b.identity.AcquirerCountryCode,
		MerchantCategoryCode:          b.identity.MerchantCategoryCode,
		CardAcceptor:                  b.identity.acceptor(),
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
		Path:               PushFundsPath,
		Payload:            body,
		Dialect:            gateway.DialectFundsTransfer,
		TraceNumber:        trace,
		RetrievalReference: rrn,
		CleartextPAN:       cleartext,
	}, nil
}
