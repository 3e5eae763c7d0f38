package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"equilex/internal/compliance"
	dispatchmetrics "equilex/internal/dispatch/metrics"
	"equilex/internal/identity"
	"equilex/internal/ledger"
	"equilex/internal/market"
	"equilex/internal/outbox"
	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
	"equilex/pkg/requestcontext"
)

// Snapshotter captures a store's state and returns a closure that restores it.
// Every mutable store the dispatcher routes into must be registered.
type Snapshotter interface {
	Snapshot() func()
}

// Dispatcher is the single entry point for externally submitted state changes.
// Actions execute one at a time under a global write lock; on any failure the
// pre-execution snapshot is restored and staged events are discarded, so a
// failed action leaves no observable trace.
type Dispatcher struct {
	mu sync.Mutex

	roles      *RoleTable
	identity   *identity.Service
	compliance *compliance.Engine
	ledger     *ledger.Service
	market     *market.Service
	publisher  *outbox.Publisher
	state      []Snapshotter

	receipts ReceiptStore
	metrics  *dispatchmetrics.Metrics
	logger   *slog.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithReceipts retains receipts in the given store for later lookup.
func WithReceipts(store ReceiptStore) Option {
	return func(d *Dispatcher) { d.receipts = store }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *dispatchmetrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func NewDispatcher(
	roles *RoleTable,
	identitySvc *identity.Service,
	complianceEngine *compliance.Engine,
	ledgerSvc *ledger.Service,
	marketSvc *market.Service,
	publisher *outbox.Publisher,
	state []Snapshotter,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		roles:      roles,
		identity:   identitySvc,
		compliance: complianceEngine,
		ledger:     ledgerSvc,
		market:     marketSvc,
		publisher:  publisher,
		state:      state,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit decodes, authorizes, and applies one action envelope atomically.
// Success returns a receipt; failure returns a coded error with no partial
// mutation observable.
func (d *Dispatcher) Submit(ctx context.Context, env Envelope) (*Receipt, error) {
	principal := requestcontext.Principal(ctx)
	if principal == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "an authenticated principal is required")
	}

	action, err := DecodeEnvelope(env)
	if err != nil {
		d.observe(env.Type, err, 0)
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	if err := d.roles.authorize(principal, action); err != nil {
		d.observe(env.Type, err, 0)
		return nil, err
	}

	restore := d.snapshot()
	result, err := d.apply(ctx, principal, action)
	if err != nil {
		restore()
		d.publisher.Discard()
		d.observe(env.Type, err, time.Since(start))
		d.logger.InfoContext(ctx, "action rejected",
			slog.String("action", action.ActionType().String()),
			slog.String("principal", principal),
			slog.String("code", string(dErrors.CodeOf(err))),
		)
		return nil, err
	}

	events, err := d.publisher.Flush(ctx)
	if err != nil {
		restore()
		d.publisher.Discard()
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit events")
		d.observe(env.Type, err, time.Since(start))
		return nil, err
	}

	receipt := &Receipt{
		ID:        uuid.New(),
		Action:    action.ActionType().String(),
		Principal: principal,
		AppliedAt: requestcontext.Now(ctx),
		Result:    result,
	}
	if len(events) > 0 {
		receipt.LastEventSeq = events[len(events)-1].Seq
	}
	if d.receipts != nil {
		if err := d.receipts.Save(ctx, *receipt); err != nil {
			d.logger.WarnContext(ctx, "failed to store receipt",
				slog.String("receipt_id", receipt.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	d.observe(env.Type, nil, time.Since(start))
	if batch, ok := action.(BatchAction); ok && d.metrics != nil {
		d.metrics.BatchSize.Observe(float64(len(batch.Actions)))
	}
	d.logger.InfoContext(ctx, "action applied",
		slog.String("action", action.ActionType().String()),
		slog.String("principal", principal),
		slog.String("receipt_id", receipt.ID.String()),
		slog.Int("events", len(events)),
	)
	return receipt, nil
}

// FindReceipt resolves a previously issued receipt, when a receipt store is
// configured.
func (d *Dispatcher) FindReceipt(ctx context.Context, receiptID uuid.UUID) (Receipt, error) {
	if d.receipts == nil {
		return Receipt{}, dErrors.New(dErrors.CodeNotFound, "receipt retention is not enabled")
	}
	receipt, err := d.receipts.Find(ctx, receiptID)
	if err != nil {
		return Receipt{}, dErrors.New(dErrors.CodeNotFound, "receipt not found")
	}
	return receipt, nil
}

func (d *Dispatcher) snapshot() func() {
	restores := make([]func(), 0, len(d.state))
	for _, s := range d.state {
		restores = append(restores, s.Snapshot())
	}
	return func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
}

func (d *Dispatcher) apply(ctx context.Context, principal string, action Action) (map[string]string, error) {
	switch a := action.(type) {
	case BatchAction:
		for _, sub := range a.Actions {
			if _, err := d.apply(ctx, principal, sub); err != nil {
				return nil, err
			}
		}
		return map[string]string{"actions": strconv.Itoa(len(a.Actions))}, nil

	case SyncKYCAction:
		if a.Verified {
			return nil, d.identity.Register(ctx, a.Account, a.IdentityKey, a.Country)
		}
		return nil, d.identity.Remove(ctx, a.Account)

	case SetCountryAction:
		return nil, d.identity.SetCountry(ctx, a.Account, a.Country)

	case SetAuthorizedAction:
		return nil, d.compliance.SetAuthorized(ctx, a.Account, a.Authorized)

	case SetLockupAction:
		return nil, d.compliance.SetLockup(ctx, a.Account, a.Until)

	case AddTrustedCounterpartyAction:
		return nil, d.compliance.AddTrustedCounterparty(ctx, a.AccountA, a.AccountB)

	case MintAction:
		return nil, d.ledger.Mint(ctx, a.To, a.Amount)

	case BurnAction:
		return nil, d.ledger.Burn(ctx, a.From, a.Amount)

	case TransferAction:
		return nil, d.ledger.Transfer(ctx, a.From, a.To, a.Amount)

	case ForcedTransferAction:
		return nil, d.ledger.ForcedTransfer(ctx, a.From, a.To, a.Amount)

	case SetFrozenAction:
		return nil, d.ledger.SetFrozen(ctx, a.Account, a.Frozen)

	case FreezePartialAction:
		return nil, d.ledger.FreezePartial(ctx, a.Account, a.Amount)

	case FundPaymentAction:
		return nil, d.market.FundPayment(ctx, a.Account, a.Amount)

	case CreateRoundAction:
		round, err := d.market.CreateRound(ctx, a.Price, a.PerInvestorCap, a.TotalCap)
		if err != nil {
			return nil, err
		}
		return map[string]string{"round_id": round.ID.String()}, nil

	case SetAllowlistAction:
		return nil, d.market.SetAllowlist(ctx, a.RoundID, a.Accounts)

	case SetRoundOpenAction:
		if a.Open {
			return nil, d.market.OpenRound(ctx, a.RoundID)
		}
		return nil, d.market.CloseRound(ctx, a.RoundID)

	case BuyAction:
		purchase, err := d.market.Buy(ctx, a.RoundID, a.Buyer, a.Payment)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"purchase_id": purchase.ID.String(),
			"asset_units": strconv.FormatUint(purchase.AssetUnits, 10),
		}, nil

	case MarkSettledAction:
		return nil, d.market.MarkSettled(ctx, a.PurchaseID)

	case RefundAction:
		asOracle := d.roles.HasRole(principal, RoleOracle)
		return nil, d.market.Refund(ctx, a.PurchaseID, id.AccountID(principal), asOracle)

	case RedeemTicketAction:
		return nil, dErrors.New(dErrors.CodeActionDisabled, "ticket redemption is not available through this channel")
	}
	return nil, dErrors.Newf(dErrors.CodeDecodeError, "unknown action type %d", action.ActionType())
}

func (d *Dispatcher) observe(tag ActionType, err error, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	outcome := "applied"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	d.metrics.ActionsTotal.WithLabelValues(tag.String(), outcome).Inc()
	if elapsed > 0 {
		d.metrics.ActionDuration.WithLabelValues(tag.String()).Observe(elapsed.Seconds())
	}
}
