// Package request assembles protocol-compliant payloads for each gateway
// operation from the merchant-facing input model. One builder exists per
// operation kind behind the common Builder interface; the service layer picks
// the builder by kind.
package request

import (
	"fmt"
	"time"

	"github.com/username/cardgate/backend/src/config"
	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/mle"
	"github.com/username/cardgate/backend/src/gateway/reference"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/models"
	"github.com/username/cardgate/backend/src/utils"
)

// localDateTimeLayout is the network's local transaction timestamp format.
const localDateTimeLayout = "2006-01-02T15:04:05"

// Input carries the merchant-facing payment input plus references preassigned
// on a retry of the same logical transaction. Builders generate fresh
// references only when none are supplied; a retry must reuse the originals so
// the network can match it instead of moving money twice.
type Input struct {
	models.PaymentInput

	TraceNumber        int
	RetrievalReference string

	// Original references, required when reversing a funds transfer.
	OriginalTraceNumber        int
	OriginalRetrievalReference string
}

// Built is a finished, serialized request plus the reference numbers the
// state machine stores for correlation.
type Built struct {
	Method  string
	Path    string
	Payload []byte
	Dialect gateway.Dialect

	TraceNumber        int
	RetrievalReference string
	CorrelationID      string

	// CleartextPAN is true when the explicit cleartext fallback was taken.
	CleartextPAN bool
}

// Builder assembles one operation's request payload.
type Builder interface {
	Kind() models.OperationKind
	Build(in Input) (*Built, error)
}

// Identity is the acquirer / card acceptor identity stamped on every request.
type Identity struct {
	AcquiringBIN         string
	AcquirerCountryCode  string
	MerchantCategoryCode string
	CardAcceptorID       string
	Name                 string
	Terminal             string
	City                 string
	State                string
	Zip                  string
	Country              string
}

// IdentityFromConfig copies the configured default identity.
func IdentityFromConfig(cfg *config.AppConfig) Identity {
	return Identity{
		AcquiringBIN:         cfg.AcquiringBIN,
		AcquirerCountryCode:  cfg.AcquirerCountryCode,
		MerchantCategoryCode: cfg.MerchantCategoryCode,
		CardAcceptorID:       cfg.CardAcceptorID,
		Name:                 cfg.CardAcceptorName,
		Terminal:             cfg.CardAcceptorTerminal,
		City:                 cfg.CardAcceptorCity,
		State:                cfg.CardAcceptorState,
		Zip:                  cfg.CardAcceptorZip,
		Country:              cfg.CardAcceptorCountry,
	}
}

// cardAcceptor is the shared card acceptor block of the funds-transfer dialect.
type cardAcceptor struct {
	Name       string          `json:"name"`
	TerminalID string          `json:"terminalId"`
	IDCode     string          `json:"idCode"`
	Address    acceptorAddress `json:"address"`
}

type acceptorAddress struct {
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country"`
}

func (id Identity) acceptor() cardAcceptor {
	return cardAcceptor{
		Name:       id.Name,
		TerminalID: id.Terminal,
		IDCode:     id.CardAcceptorID,
		Address: acceptorAddress{
			City:    id.City,
			State:   id.State,
			ZipCode: id.Zip,
			Country: id.Country,
		},
	}
}

// validateCore checks the fields every operation requires and returns the
// names of any missing or invalid ones.
func validateCore(in Input) []string {
	var missing []string
	if in.MerchantTransactionID == "" {
		missing = append(missing, "merchantTransactionId")
	}
	if in.Amount == "" {
		missing = append(missing, "amount")
	} else if !ValidAmount(in.Amount) {
		missing = append(missing, "amount")
	}
	if in.Currency == "" {
		missing = append(missing, "currency")
	} else if _, ok := NumericCurrencyCode(in.Currency); !ok {
		missing = append(missing, "currency")
	}
	return missing
}

// resolveReferences returns the trace number and retrieval reference for this
// submit attempt, generating them only when the input carries none.
func resolveReferences(in Input, now time.Time) (int, string) {
	trace := in.TraceNumber
	if trace == 0 {
		trace = reference.NewTraceNumber()
	}
	rrn := in.RetrievalReference
	if rrn == "" {
		rrn = reference.NewRetrievalReference(now, trace)
	}
	return trace, rrn
}

// protectPAN encrypts a primary account number for transmission. When
// encryption fails and the deployment has explicitly opted in to cleartext,
// the raw value is substituted and the degrade is logged with the PAN masked.
// Otherwise the error aborts the build.
func protectPAN(enc *mle.Encryptor, pan string) (value string, cleartext bool, err error) {
	encrypted, encErr := enc.EncryptField(pan)
	if encErr == nil {
		return encrypted, false, nil
	}
	if enc.CleartextAllowed() {
		if logger.L != nil {
			logger.L.Warn("Field encryption failed, proceeding with cleartext account number by explicit configuration",
				"pan", utils.MaskPAN(pan), "error", encErr)
		}
		return pan, true, nil
	}
	return "", false, fmt.Errorf("account number encryption: %w", encErr)
}
