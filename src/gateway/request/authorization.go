package request

import (
	"encoding/json"
	"time"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/mle"
	"github.com/username/cardgate/backend/src/gateway/reference"
	"github.com/username/cardgate/backend/src/models"
)

// AuthorizationPath is the authorization endpoint of the nested-envelope
// dialect.
const AuthorizationPath = "/acquirer/v1/authorizations"

// The authorization dialect wraps every request in a four-section envelope:
// message identification, body, environment, context.

type messageIdentification struct {
	CorrelationID            string `json:"correlationId"`
	SystemsTraceAuditNumber  int    `json:"systemsTraceAuditNumber"`
	RetrievalReferenceNumber string `json:"retrievalReferenceNumber"`
	LocalDateTime            string `json:"localDateTime"`

	// Set on void requests only: the transaction being voided.
	OriginalTransactionID string `json:"originalTransactionId,omitempty"`
}

type transactionAmount struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type authBody struct {
	TransactionAmount transactionAmount `json:"transactionAmount"`
	Description       string            `json:"description,omitempty"`
}

type envelopeCard struct {
	PrimaryAccountNumber string `json:"primaryAccountNumber"`
	ExpiryDate           string `json:"expiryDate"`
	CardholderName       string `json:"cardholderName,omitempty"`
	EncryptionKeyID      string `json:"encryptionKeyId,omitempty"`
}

type envelopeMerchant struct {
	AcquiringBin         string `json:"acquiringBin"`
	AcquirerCountryCode  string `json:"acquirerCountryCode"`
	MerchantCategoryCode string `json:"merchantCategoryCode"`
	CardAcceptorID       string `json:"cardAcceptorId"`
	Name                 string `json:"name"`
	TerminalID           string `json:"terminalId"`
	City                 string `json:"city"`
	CountryCode          string `json:"countryCode"`
}

type environment struct {
	Card     *envelopeCard    `json:"card,omitempty"`
	Merchant envelopeMerchant `json:"merchant"`
}

type posContext struct {
	CardPresent        bool `json:"cardPresent"`
	EcommerceIndicator bool `json:"ecommerceIndicator"`
}

type contextSection struct {
	PointOfServiceContext posContext `json:"pointOfServiceContext"`
}

type authEnvelope struct {
	MessageIdentification messageIdentification `json:"messageIdentification"`
	Body                  authBody              `json:"body"`
	Environment           environment           `json:"environment"`
	Context               contextSection        `json:"context"`
}

// AuthorizationBuilder assembles authorization requests.
type AuthorizationBuilder struct {
	identity  Identity
	encryptor *mle.Encryptor
}

func NewAuthorizationBuilder(identity Identity, encryptor *mle.Encryptor) *AuthorizationBuilder {
	return &AuthorizationBuilder{identity: identity, encryptor: encryptor}
}

func (b *AuthorizationBuilder) Kind() models.OperationKind { return models.OpAuthorization }

func (b *AuthorizationBuilder) merchant() envelopeMerchant {
	return envelopeMerchant{
		AcquiringBin:         b.identity.AcquiringBIN,
		AcquirerCountryCode:  b.identity.AcquirerCountryCode,
		MerchantCategoryCode: b.identity.MerchantCategoryCode,
		CardAcceptorID:       b.identity.CardAcceptorID,
		Name:                 b.identity.Name,
		TerminalID:           b.identity.Terminal,
		City:                 b.identity.City,
		CountryCode:          b.identity.Country,
	}
}

func (b *AuthorizationBuilder) Build(in Input) (*Built, error) {
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
	correlationID := reference.NewCorrelationID()
	currencyCode, _ := NumericCurrencyCode(in.Currency)

	pan, cleartext, err := protectPAN(b.encryptor, in.Card.AccountNumber)
	if err != nil {
		return nil, err
	}

	card := &envelopeCard{
		PrimaryAccountNumber: pan,
		ExpiryDate:           in.Card.ExpiryDate,
		CardholderName:       in.Card.HolderName,
	}
	if !cleartext {
		card.EncryptionKeyID = b.encryptor.KeyID()
	}

	envelope := authEnvelope{
		MessageIdentification: messageIdentification{
			CorrelationID:            correlationID,
			SystemsTraceAuditNumber:  trace,
			RetrievalReferenceNumber: rrn,
			LocalDateTime:            now.Format(localDateTimeLayout),
		},
		Body: authBody{
			TransactionAmount: transactionAmount{
				Amount:       in.Amount,
				CurrencyCode: currencyCode,
			},
			Description: in.Description,
		},
		Environment: environment{
			Card:     card,
			Merchant: b.merchant(),
		},
		Context: contextSection{
			PointOfServiceContext: posContext{CardPresent: false, EcommerceIndicator: true},
		},
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	return &Built{
		Method:             "POST",
		Path:               AuthorizationPath,
		Payload:            body,
		Dialect:            gateway.DialectAuthorization,
		TraceNumber:        trace,
		RetrievalReference: rrn,
		CorrelationID:      correlationID,
		CleartextPAN:       cleartext,
	}, nil
}
