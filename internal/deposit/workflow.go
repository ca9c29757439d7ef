package deposit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/observability"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/utils"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateAmountEntry     State = "amount_entry"
	StateMethodSelection State = "method_selection"
	StateAwaitingPayment State = "awaiting_payment_confirmation"
	StateProofUpload     State = "proof_upload"
	StatePendingReview   State = "pending_review"
)

// Ledger is the part of the record store the workflow writes to.
type Ledger interface {
	AppendTransaction(ctx context.Context, email string, tx models.Transaction) error
	AttachProof(ctx context.Context, email, txID, ref string) error
}

type Sessions interface {
	RequireSession(ctx context.Context) (*models.Session, error)
}

// Proof is the file handed over by the upload collaborator. Type and size
// checks happen there.
type Proof struct {
	FileID   string
	FileName string
	MimeType string
	Size     int64
	IsPhoto  bool
}

// ProofSink receives the proof for a logged deposit and returns the reference
// stored on the transaction.
type ProofSink interface {
	Forward(ctx context.Context, owner string, tx models.Transaction, proof Proof) (string, error)
}

// Converter gives an approximate value for display. Never stored.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

type Deps struct {
	Ledger    Ledger
	Addresses map[Method]string
	Sink      ProofSink
	Converter Converter
	Clock     func() time.Time
	Logger    *utils.Logger
}

// Snapshot is a read-only view of the draft.
type Snapshot struct {
	State       State
	Amount      decimal.Decimal
	Currency    string
	Method      Method
	Address     string
	Transaction *models.Transaction
}

// Workflow walks one actor through a deposit. Nothing is persisted before
// ConfirmPaymentMade.
type Workflow struct {
	deps     Deps
	sessions Sessions

	mu       sync.Mutex
	state    State
	amount   decimal.Decimal
	currency string
	method   Method
	owner    string
	tx       *models.Transaction

	// forwarded is the sink reference of the proof already handed to
	// reviewers for tx; retries after a failed attach reuse it.
	forwarded string
}

func New(deps Deps, sessions Sessions) *Workflow {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Workflow{
		deps:     deps,
		sessions: sessions,
		state:    StateAmountEntry,
		currency: "USD",
	}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		State:    w.state,
		Amount:   w.amount,
		Currency: w.currency,
		Method:   w.method,
		Address:  w.deps.Addresses[w.method],
	}
	if w.tx != nil {
		tx := *w.tx
		snap.Transaction = &tx
	}
	return snap
}

func (w *Workflow) beforeConfirmation() bool {
	return w.state == StateAmountEntry || w.state == StateMethodSelection || w.state == StateAwaitingPayment
}

// ParseAmount accepts a positive decimal, with either a point or a comma.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	if value == "" {
		return decimal.Zero, apperr.NewValidationError("amount", "is required")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperr.NewValidationError("amount", fmt.Sprintf("%q is not a number", value))
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperr.NewValidationError("amount", "must be positive")
	}
	return amount, nil
}

func (w *Workflow) SetAmount(value, currency string) error {
	amount, err := ParseAmount(value)
	if err != nil {
		return err
	}
	code, err := normalizeCurrency(currency)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.beforeConfirmation() {
		return fmt.Errorf("set amount in %s: %w", w.state, apperr.ErrInvalidTransition)
	}

	w.amount = amount
	w.currency = code
	if w.method != "" {
		w.state = StateAwaitingPayment
	} else {
		w.state = StateMethodSelection
	}
	return nil
}

// SelectMethod picks the payment channel and returns its deposit address.
func (w *Workflow) SelectMethod(method Method) (string, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return "", err
	}
	address := w.deps.Addresses[method]
	if address == "" {
		return "", apperr.NewValidationError("method", fmt.Sprintf("no deposit address configured for %s", method.Label()))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.beforeConfirmation() {
		return "", fmt.Errorf("select method in %s: %w", w.state, apperr.ErrInvalidTransition)
	}

	w.method = method
	if w.amount.IsPositive() {
		w.state = StateAwaitingPayment
	}
	return address, nil
}

// ConfirmPaymentMade logs the draft as a pending deposit of the signed-in account.
func (w *Workflow) ConfirmPaymentMade(ctx context.Context) (*models.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.beforeConfirmation() {
		return nil, fmt.Errorf("confirm payment in %s: %w", w.state, apperr.ErrInvalidTransition)
	}
	if !w.amount.IsPositive() {
		return nil, apperr.NewValidationError("amount", "enter the deposit amount first")
	}
	if w.method == "" {
		return nil, apperr.NewValidationError("method", "choose a payment method first")
	}

	sess, err := w.sessions.RequireSession(ctx)
	if err != nil {
		return nil, err
	}

	now := w.deps.Clock().UTC()
	tx := models.Transaction{
		ID:       service.NewTransactionID(now),
		Type:     models.TxDeposit,
		Amount:   w.amount,
		Currency: w.currency,
		Status:   models.StatusPending,
		Date:     now.Format(models.DateLayout),
		Method:   w.method.Label(),
	}
	if err := w.deps.Ledger.AppendTransaction(ctx, sess.Email, tx); err != nil {
		return nil, err
	}

	w.owner = sess.Email
	w.tx = &tx
	w.forwarded = ""
	w.state = StateProofUpload

	observability.DepositsCreated.WithLabelValues(string(w.method)).Inc()
	if w.deps.Logger != nil {
		w.deps.Logger.Infof("Deposit %s of %s %s via %s logged for %s", tx.ID, tx.Amount.String(), tx.Currency, tx.Method, sess.Email)
	}
	result := tx
	return &result, nil
}

// SubmitProof attaches the payment proof to the logged deposit. The deposit
// stays pending until an administrator reviews it. The proof is forwarded to
// the sink once per deposit, even when attaching has to be retried.
func (w *Workflow) SubmitProof(ctx context.Context, proof Proof) (*models.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateProofUpload || w.tx == nil {
		return nil, fmt.Errorf("submit proof in %s: %w", w.state, apperr.ErrInvalidTransition)
	}
	if proof.FileID == "" {
		return nil, apperr.NewValidationError("proof", "a file is required")
	}

	ref := w.forwarded
	switch {
	case ref != "":
		if w.deps.Logger != nil {
			w.deps.Logger.Infof("Proof of %s already forwarded, attaching it again", w.tx.ID)
		}
	case w.deps.Sink != nil:
		forwarded, err := w.deps.Sink.Forward(ctx, w.owner, *w.tx, proof)
		if err != nil {
			return nil, fmt.Errorf("forward proof for %s: %w", w.tx.ID, err)
		}
		ref = proof.FileID
		if forwarded != "" {
			ref = forwarded
		}
		w.forwarded = ref
	default:
		ref = proof.FileID
	}

	if err := w.deps.Ledger.AttachProof(ctx, w.owner, w.tx.ID, ref); err != nil {
		return nil, err
	}

	w.tx.Proof = ref
	w.state = StatePendingReview
	observability.ProofsSubmitted.Inc()

	result := *w.tx
	return &result, nil
}

// Cancel resets the workflow. It reports whether a pending deposit had
// already been logged; that deposit is not retracted.
func (w *Workflow) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	logged := w.tx != nil
	w.state = StateAmountEntry
	w.amount = decimal.Zero
	w.currency = "USD"
	w.method = ""
	w.owner = ""
	w.tx = nil
	w.forwarded = ""
	return logged
}

// Estimate converts the draft amount for display. ok is false while no rate
// is available; the stored amount is never affected.
func (w *Workflow) Estimate(ctx context.Context, to string) (decimal.Decimal, bool) {
	w.mu.Lock()
	amount, from := w.amount, w.currency
	w.mu.Unlock()

	if !amount.IsPositive() {
		return decimal.Zero, false
	}
	if strings.EqualFold(from, to) {
		return amount, true
	}
	if w.deps.Converter == nil {
		return decimal.Zero, false
	}
	converted, err := w.deps.Converter.Convert(ctx, amount, from, to)
	if err != nil {
		if w.deps.Logger != nil {
			w.deps.Logger.Debugf("No %s->%s rate for display: %v", from, to, err)
		}
		return decimal.Zero, false
	}
	return converted, true
}
