package request

import (
	"encoding/json"
	"time"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/reference"
	"github.com/username/cardgate/backend/src/models"
)

// VoidWithIDPathPrefix voids an authorization addressed by its network id.
const VoidWithIDPathPrefix = "/acquirer/v1/authorizations/"

// VoidWithoutIDPath voids an authorization matched by original references
// when no network id is known.
const VoidWithoutIDPath = "/acquirer/v1/voids"

// VoidBuilder assembles void requests in the nested-envelope dialect.
// When the original authorization's network id is known the void is addressed
// to it directly; otherwise the network matches on the original trace and
// retrieval reference carried in the envelope.
type VoidBuilder struct {
	identity Identity
}

func NewVoidBuilder(identity Identity) *VoidBuilder {
	return &VoidBuilder{identity: identity}
}

func (b *VoidBuilder) Kind() models.OperationKind { return models.OpVoid }

func (b *VoidBuilder) Build(in Input) (*Built, error) {
	missing := validateCore(in)
	if in.NetworkTransactionID == "" && in.OriginalRetrievalReference == "" {
		missing = append(missing, "networkTransactionId")
	}
	if len(missing) > 0 {
		return nil, gateway.NewValidationError(missing...)
	}

	now := time.Now()
	trace, rrn := resolveReferences(in, now)
	correlationID := reference.NewCorrelationID()
	currencyCode, _ := NumericCurrencyCode(in.Currency)

	msgID := messageIdentification{
		CorrelationID:            correlationID,
		SystemsTraceAuditNumber:  trace,
		RetrievalReferenceNumber: rrn,
		LocalDateTime:            now.Format(localDateTimeLayout),
		OriginalTransactionID:    in.NetworkTransactionID,
	}

	path := VoidWithoutIDPath
	if in.NetworkTransactionID != "" {
		path = VoidWithIDPathPrefix + in.NetworkTransactionID + "/void"
	} else {
		// No network id: thread the original references for matching.
		msgID.RetrievalReferenceNumber = in.OriginalRetrievalReference
		if in.OriginalTraceNumber != 0 {
			msgID.SystemsTraceAuditNumber = in.OriginalTraceNumber
		}
	}

	envelope := authEnvelope{
		MessageIdentification: msgID,
		Body: authBody{
			TransactionAmount: transactionAmount{
				Amount:       in.Amount,
				CurrencyCode: currencyCode,
			},
			Description: in.Description,
		},
		Environment: environment{
			Merchant: envelopeMerchant{
				AcquiringBin:         b.identity.AcquiringBIN,
				AcquirerCountryCode:  b.identity.AcquirerCountryCode,
				MerchantCategoryCode: b.identity.MerchantCategoryCode,
				CardAcceptorID:       b.identity.CardAcceptorID,
				Name:                 b.identity.Name,
				TerminalID:           b.identity.Terminal,
				City:                 b.identity.City,
				CountryCode:          b.identity.Country,
			},
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
		Path:               path,
		Payload:            body,
		Dialect:            gateway.DialectAuthorization,
		TraceNumber:        trace,
		RetrievalReference: rrn,
		CorrelationID:      correlationID,
	}, nil
}
