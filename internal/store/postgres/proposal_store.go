package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vinetrail/vinetrail-backend/internal/store"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/types"
)

// Ensure ProposalStore implements store.ProposalStore.
var _ store.ProposalStore = (*ProposalStore)(nil)

// proposalColumns is selected from a row source aliased p joined to brands b.
// Money columns are read as text and parsed with decimal.
const proposalColumns = `p.id, p.proposal_number, p.brand_id, b.code,
       p.customer_name, p.customer_email, p.customer_phone, p.trip_title, p.trip_type,
       p.start_date, p.end_date, p.party_size, p.total::text, p.deposit_amount::text, p.currency,
       p.status, p.deposit_paid, p.deposit_paid_at, p.payment_intent_id, p.valid_until,
       p.sent_at, p.viewed_at, p.accepted_at, p.accepted_signature, p.accepted_ip,
       p.notes, p.created_at, p.updated_at`

// ProposalStore implements store.ProposalStore.
type ProposalStore struct {
	db DB
}

// NewProposalStore creates a new PostgreSQL proposal store.
func NewProposalStore(db DB) *ProposalStore {
	return &ProposalStore{db: db}
}

func scanProposal(row pgx.Row) (*types.TripProposal, error) {
	var (
		p              types.TripProposal
		total, deposit string
		status         string
	)
	err := row.Scan(
		&p.ID, &p.ProposalNumber, &p.BrandID, &p.BrandCode,
		&p.CustomerName, &p.CustomerEmail, &p.CustomerPhone, &p.TripTitle, &p.TripType,
		&p.StartDate, &p.EndDate, &p.PartySize, &total, &deposit, &p.Currency,
		&status, &p.DepositPaid, &p.DepositPaidAt, &p.PaymentIntentID, &p.ValidUntil,
		&p.SentAt, &p.ViewedAt, &p.AcceptedAt, &p.AcceptedSignature, &p.AcceptedIP,
		&p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid total %q: %w", total, err)
	}
	if p.DepositAmount, err = decimal.NewFromString(deposit); err != nil {
		return nil, fmt.Errorf("invalid deposit amount %q: %w", deposit, err)
	}
	p.Status = types.ProposalStatus(status)
	return &p, nil
}

func statusStrings(statuses []types.ProposalStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// FormatProposalNumber renders the external number for a sequence value.
func FormatProposalNumber(year int, seq int64) string {
	return fmt.Sprintf("TP-%d%04d", year, seq)
}

// CreateProposal inserts a draft and assigns its proposal number.
func (s *ProposalStore) CreateProposal(ctx context.Context, in *types.TripProposal) (*types.TripProposal, error) {
	log := logger.GetLogger()
	var created *types.TripProposal

	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('trip_proposal_number_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate proposal number: %w", err)
		}
		number := FormatProposalNumber(time.Now().UTC().Year(), seq)

		row := tx.QueryRow(ctx, `
			WITH p AS (
				INSERT INTO trip_proposals (
					proposal_number, brand_id, customer_name, customer_email, customer_phone,
					trip_title, trip_type, start_date, end_date, party_size,
					total, deposit_amount, currency, status, valid_until, notes
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric, $12::numeric, $13, $14, $15, $16)
				RETURNING *
			)
			SELECT `+proposalColumns+`
			FROM p JOIN brands b ON b.id = p.brand_id`,
			number, in.BrandID, in.CustomerName, in.CustomerEmail, in.CustomerPhone,
			in.TripTitle, in.TripType, in.StartDate, in.EndDate, in.PartySize,
			in.Total.StringFixed(2), in.DepositAmount.StringFixed(2), in.Currency,
			string(types.ProposalStatusDraft), in.ValidUntil, in.Notes,
		)
		p, err := scanProposal(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isForeignKeyViolation(err) {
				// unknown brand
				return store.ErrNotFound
			}
			return fmt.Errorf("failed to insert proposal: %w", err)
		}
		created = p
		return nil
	})
	if err != nil {
		log.Errorw("CreateProposal transaction failed", "brandId", in.BrandID, "error", err)
		return nil, err
	}

	log.Infow("Created trip proposal", "proposalId", created.ID, "proposalNumber", created.ProposalNumber)
	return created, nil
}

// GetProposal loads a proposal by internal id.
func (s *ProposalStore) GetProposal(ctx context.Context, id int64) (*types.TripProposal, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+proposalColumns+`
		FROM trip_proposals p JOIN brands b ON b.id = p.brand_id
		WHERE p.id = $1`, id)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get proposal %d: %w", id, err)
	}
	return p, nil
}

// GetProposalByNumber loads a proposal by its external number.
func (s *ProposalStore) GetProposalByNumber(ctx context.Context, number string) (*types.TripProposal, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+proposalColumns+`
		FROM trip_proposals p JOIN brands b ON b.id = p.brand_id
		WHERE p.proposal_number = $1`, number)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get proposal %s: %w", number, err)
	}
	return p, nil
}

// ListProposals returns proposals newest first.
func (s *ProposalStore) ListProposals(ctx context.Context, filter types.ProposalFilter, limit, offset int) ([]*types.TripProposal, error) {
	log := logger.GetLogger()
	var conditions []string
	var args []interface{}
	argCount := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", argCount))
		args = append(args, string(filter.Status))
		argCount++
	}
	if filter.BrandID != 0 {
		conditions = append(conditions, fmt.Sprintf("p.brand_id = $%d", argCount))
		args = append(args, filter.BrandID)
		argCount++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(p.customer_name ILIKE $%d OR p.customer_email ILIKE $%d OR p.proposal_number ILIKE $%d OR p.trip_title ILIKE $%d)",
			argCount, argCount, argCount, argCount))
		args = append(args, "%"+filter.Search+"%")
		argCount++
	}

	query := `
		SELECT ` + proposalColumns + `
		FROM trip_proposals p JOIN brands b ON b.id = p.brand_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		log.Errorw("Failed to list proposals", "filter", filter, "error", err)
		return nil, fmt.Errorf("database error listing proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]*types.TripProposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating proposals: %w", err)
	}
	return proposals, nil
}

// UpdateDraft applies the non-nil fields of update to a draft proposal.
func (s *ProposalStore) UpdateDraft(ctx context.Context, id int64, update types.ProposalUpdate) (*types.TripProposal, error) {
	var setFields []string
	var args []interface{}
	argPosition := 1

	set := func(column string, value interface{}) {
		setFields = append(setFields, fmt.Sprintf("%s = $%d", column, argPosition))
		args = append(args, value)
		argPosition++
	}

	if update.CustomerName != nil {
		set("customer_name", *update.CustomerName)
	}
	if update.CustomerEmail != nil {
		set("customer_email", *update.CustomerEmail)
	}
	if update.CustomerPhone != nil {
		set("customer_phone", *update.CustomerPhone)
	}
	if update.TripTitle != nil {
		set("trip_title", *update.TripTitle)
	}
	if update.TripType != nil {
		set("trip_type", *update.TripType)
	}
	if update.StartDate != nil {
		set("start_date", *update.StartDate)
	}
	if update.EndDate != nil {
		set("end_date", *update.EndDate)
	}
	if update.PartySize != nil {
		set("party_size", *update.PartySize)
	}
	if update.Total != nil {
		setFields = append(setFields, fmt.Sprintf("total = $%d::numeric", argPosition))
		args = append(args, update.Total.StringFixed(2))
		argPosition++
	}
	if update.DepositAmount != nil {
		setFields = append(setFields, fmt.Sprintf("deposit_amount = $%d::numeric", argPosition))
		args = append(args, update.DepositAmount.StringFixed(2))
		argPosition++
	}
	if update.ValidUntil != nil {
		set("valid_until", *update.ValidUntil)
	}
	if update.Notes != nil {
		set("notes", *update.Notes)
	}

	if len(args) == 0 {
		p, err := s.GetProposal(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != types.ProposalStatusDraft {
			return nil, store.ErrConflict
		}
		return p, nil
	}

	setFields = append(setFields, "updated_at = NOW()")
	query := fmt.Sprintf(`
		WITH p AS (
			UPDATE trip_proposals
			SET %s
			WHERE id = $%d AND status = $%d
			RETURNING *
		)
		SELECT %s
		FROM p JOIN brands b ON b.id = p.brand_id`,
		strings.Join(setFields, ", "), argPosition, argPosition+1, proposalColumns)
	args = append(args, id, string(types.ProposalStatusDraft))

	p, err := scanProposal(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.missingOrConflict(ctx, id)
		}
		return nil, fmt.Errorf("database error updating proposal: %w", err)
	}
	return p, nil
}

// missingOrConflict tells apart a row that does not exist from one a
// conditional write skipped.
func (s *ProposalStore) missingOrConflict(ctx context.Context, id int64) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trip_proposals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check proposal %d: %w", id, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func insertActivity(ctx context.Context, tx pgx.Tx, a types.ProposalActivity) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO proposal_activity (proposal_id, action, actor_type, actor_id, signature, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ProposalID, string(a.Action), string(a.ActorType), a.ActorID, a.Signature, a.IPAddress, a.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to record proposal activity: %w", err)
	}
	return nil
}

// TransitionStatus implements store.ProposalStore.
func (s *ProposalStore) TransitionStatus(ctx context.Context, id int64, from []types.ProposalStatus, to types.ProposalStatus, activity types.ProposalActivity) (*types.TripProposal, error) {
	var updated *types.TripProposal
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			WITH p AS (
				UPDATE trip_proposals
				SET status = $2,
				    sent_at = CASE WHEN $2 = 'sent' THEN NOW() ELSE sent_at END,
				    viewed_at = CASE WHEN $2 = 'viewed' THEN NOW() ELSE viewed_at END,
				    updated_at = NOW()
				WHERE id = $1 AND status = ANY($3)
				RETURNING *
			)
			SELECT `+proposalColumns+`
			FROM p JOIN brands b ON b.id = p.brand_id`,
			id, string(to), statusStrings(from),
		)
		p, err := scanProposal(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrConflict
			}
			return fmt.Errorf("failed to update proposal status: %w", err)
		}
		activity.ProposalID = id
		if err := insertActivity(ctx, tx, activity); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.GetLogger().Infow("Proposal status changed",
		"proposalId", id, "status", to, "actor", activity.ActorType)
	return updated, nil
}

// AcceptProposal records the customer's acceptance. Only sent or viewed
// proposals qualify.
func (s *ProposalStore) AcceptProposal(ctx context.Context, id int64, acc types.Acceptance) (*types.TripProposal, error) {
	var accepted *types.TripProposal
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			WITH p AS (
				UPDATE trip_proposals
				SET status = $2,
				    accepted_at = $3,
				    accepted_signature = $4,
				    accepted_ip = $5,
				    updated_at = NOW()
				WHERE id = $1 AND status = ANY($6)
				RETURNING *
			)
			SELECT `+proposalColumns+`
			FROM p JOIN brands b ON b.id = p.brand_id`,
			id, string(types.ProposalStatusAccepted), acc.At, acc.Signature, nullIfEmpty(acc.IPAddress),
			statusStrings(types.SourcesFor(types.ProposalStatusAccepted)),
		)
		p, err := scanProposal(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrConflict
			}
			return fmt.Errorf("failed to accept proposal: %w", err)
		}

		signature := acc.Signature
		if err := insertActivity(ctx, tx, types.ProposalActivity{
			ProposalID: id,
			Action:     types.ActivityAccepted,
			ActorType:  types.ActorCustomer,
			Signature:  &signature,
			IPAddress:  nullIfEmpty(acc.IPAddress),
			UserAgent:  nullIfEmpty(acc.UserAgent),
		}); err != nil {
			return err
		}
		accepted = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// MarkExpired moves a sent or viewed proposal to expired.
func (s *ProposalStore) MarkExpired(ctx context.Context, id int64) (*types.TripProposal, error) {
	return s.TransitionStatus(ctx, id,
		types.SourcesFor(types.ProposalStatusExpired),
		types.ProposalStatusExpired,
		types.ProposalActivity{Action: types.ActivityExpired, ActorType: types.ActorSystem},
	)
}

// ExpireOverdue implements store.ProposalStore. valid_until is a date and
// stays valid through its whole day, so only dates before today expire.
func (s *ProposalStore) ExpireOverdue(ctx context.Context, now time.Time) ([]int64, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	var ids []int64
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH expired AS (
				UPDATE trip_proposals
				SET status = $1, updated_at = NOW()
				WHERE status = ANY($2) AND valid_until IS NOT NULL AND valid_until < $3::date
				RETURNING id
			), logged AS (
				INSERT INTO proposal_activity (proposal_id, action, actor_type)
				SELECT id, $4, $5 FROM expired
			)
			SELECT id FROM expired ORDER BY id`,
			string(types.ProposalStatusExpired),
			statusStrings(types.SourcesFor(types.ProposalStatusExpired)),
			today,
			string(types.ActivityExpired),
			string(types.ActorSystem),
		)
		if err != nil {
			return fmt.Errorf("failed to expire overdue proposals: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("failed to scan expired proposal id: %w", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RecordDepositPayment implements store.ProposalStore. The conditional
// update is the guard against two concurrent confirmations; the unique
// indexes on proposal_payments back it up.
func (s *ProposalStore) RecordDepositPayment(ctx context.Context, proposalID int64, payment types.PaymentRecord) (time.Time, error) {
	var paidAt time.Time
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE trip_proposals
			SET deposit_paid = true,
			    deposit_paid_at = NOW(),
			    payment_intent_id = $2,
			    updated_at = NOW()
			WHERE id = $1 AND deposit_paid = false
			RETURNING deposit_paid_at`,
			proposalID, payment.PaymentIntentID,
		).Scan(&paidAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrConflict
			}
			return fmt.Errorf("failed to mark deposit paid: %w", err)
		}

		kind := payment.Kind
		if kind == "" {
			kind = types.PaymentKindDeposit
		}
		status := payment.Status
		if status == "" {
			status = types.PaymentStatusSucceeded
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO proposal_payments (proposal_id, payment_intent_id, amount, currency, kind, status)
			VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
			proposalID, payment.PaymentIntentID, payment.Amount.StringFixed(2), payment.Currency, kind, status,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("failed to insert payment record: %w", err)
		}

		return insertActivity(ctx, tx, types.ProposalActivity{
			ProposalID: proposalID,
			Action:     types.ActivityDepositPaid,
			ActorType:  types.ActorCustomer,
		})
	})
	if err != nil {
		return time.Time{}, err
	}

	logger.GetLogger().Infow("Deposit payment recorded",
		"proposalId", proposalID, "paymentIntentId", payment.PaymentIntentID, "amount", payment.Amount.StringFixed(2))
	return paidAt, nil
}

// ListPayments returns the payment rows of a proposal, oldest first.
func (s *ProposalStore) ListPayments(ctx context.Context, proposalID int64) ([]types.PaymentRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, proposal_id, payment_intent_id, amount::text, currency, kind, status, created_at
		FROM proposal_payments
		WHERE proposal_id = $1
		ORDER BY created_at, id`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("database error listing payments: %w", err)
	}
	defer rows.Close()

	payments := make([]types.PaymentRecord, 0)
	for rows.Next() {
		var (
			rec    types.PaymentRecord
			amount string
		)
		if err := rows.Scan(&rec.ID, &rec.ProposalID, &rec.PaymentIntentID, &amount,
			&rec.Currency, &rec.Kind, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning payment: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid payment amount %q: %w", amount, err)
		}
		payments = append(payments, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating payments: %w", err)
	}
	return payments, nil
}

// ListActivity returns the audit trail of a proposal, oldest first.
func (s *ProposalStore) ListActivity(ctx context.Context, proposalID int64) ([]types.ProposalActivity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, proposal_id, action, actor_type, actor_id, signature, ip_address, user_agent, created_at
		FROM proposal_activity
		WHERE proposal_id = $1
		ORDER BY created_at, id`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("database error listing activity: %w", err)
	}
	defer rows.Close()

	activity := make([]types.ProposalActivity, 0)
	for rows.Next() {
		var (
			a             types.ProposalActivity
			action, actor string
		)
		if err := rows.Scan(&a.ID, &a.ProposalID, &action, &actor, &a.ActorID,
			&a.Signature, &a.IPAddress, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning activity: %w", err)
		}
		a.Action = types.ActivityAction(action)
		a.ActorType = types.ActorType(actor)
		activity = append(activity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating activity: %w", err)
	}
	return activity, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
