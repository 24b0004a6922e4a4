package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderledger/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	orderColumns = `
		id, customer_id, product_id, currency,
		quantity_ordered, quantity_delivered, selling_price, delivery_cost,
		delivery_date, order_completion_date, status,
		advance_amount, advance_date, advance_transaction_id, advance_mode, advance_recorded_at,
		raw_material_status, raw_material_consumed_quantity, raw_material_locked,
		credit_period_days, advance_required, advance_percentage,
		financial_status, total_order_value, total_paid_amount, unadjusted_credit_total,
		pending_amount, delivered_value, reconciled_at,
		version, created_at, updated_at`
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
		        $17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
	`, orderArgs(order)...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err = writeChildren(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if err := r.loadChildren(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY created_at DESC, id DESC
	`
	if limit > 0 {
		return r.queryOrders(ctx, query+" LIMIT $2", customerID, limit)
	}
	return r.queryOrders(ctx, query, customerID)
}

func (r *orderRepository) ListOverdueCandidates(asOf time.Time, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	return r.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE financial_status = $1
		  AND credit_period_days > 0
		  AND delivery_date + make_interval(days => credit_period_days) < $2
		ORDER BY delivery_date ASC, id ASC
		LIMIT $3
	`, string(domain.FinancialStatusPending), asOf, limit)
}

func (r *orderRepository) Save(order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $2,
		    product_id = $3,
		    currency = $4,
		    quantity_ordered = $5,
		    quantity_delivered = $6,
		    selling_price = $7,
		    delivery_cost = $8,
		    delivery_date = $9,
		    order_completion_date = $10,
		    status = $11,
		    advance_amount = $12,
		    advance_date = $13,
		    advance_transaction_id = $14,
		    advance_mode = $15,
		    advance_recorded_at = $16,
		    raw_material_status = $17,
		    raw_material_consumed_quantity = $18,
		    raw_material_locked = $19,
		    credit_period_days = $20,
		    advance_required = $21,
		    advance_percentage = $22,
		    financial_status = $23,
		    total_order_value = $24,
		    total_paid_amount = $25,
		    unadjusted_credit_total = $26,
		    pending_amount = $27,
		    delivered_value = $28,
		    reconciled_at = $29,
		    version = version + 1,
		    created_at = $31,
		    updated_at = $32
		WHERE id = $1
		  AND version = $30
	`, orderArgs(order)...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := orderExistsTx(ctx, tx, order.ID)
		if existsErr != nil {
			err = existsErr
			return err
		}
		if !exists {
			err = domain.ErrOrderNotFound
			return err
		}
		err = domain.ErrOrderVersionConflict
		return err
	}

	if err = writeChildren(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if err := r.loadChildren(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) loadChildren(ctx context.Context, order *domain.Order) error {
	payments, err := r.loadPayments(ctx, order.ID)
	if err != nil {
		return err
	}
	notes, err := r.loadCreditNotes(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Payments = payments
	order.CreditNotes = notes
	return nil
}

func (r *orderRepository) loadPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount, paid_at, transaction_id, mode, notes, recorded_at
		FROM order_payments
		WHERE order_id = $1
		ORDER BY seq ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var (
			p    domain.Payment
			mode string
		)
		if err := rows.Scan(&p.ID, &p.Amount, &p.Date, &p.TransactionID, &mode, &p.Notes, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan order payment: %w", err)
		}
		p.Mode = domain.PaymentMode(mode)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order payments: %w", err)
	}
	return payments, nil
}

func (r *orderRepository) loadCreditNotes(ctx context.Context, orderID string) ([]domain.CreditNote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount, reason, linked_order_id, note_date, status, notes, issued_at, resolved_at
		FROM order_credit_notes
		WHERE order_id = $1
		ORDER BY seq ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load credit notes: %w", err)
	}
	defer rows.Close()

	var notes []domain.CreditNote
	for rows.Next() {
		var (
			c        domain.CreditNote
			reason   string
			status   string
			noteDate sql.NullTime
			resolved sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Amount, &reason, &c.LinkedOrderID, &noteDate, &status, &c.Notes, &c.IssuedAt, &resolved); err != nil {
			return nil, fmt.Errorf("scan credit note: %w", err)
		}
		c.Reason = domain.CreditNoteReason(reason)
		c.Status = domain.CreditNoteStatus(status)
		if noteDate.Valid {
			c.Date = noteDate.Time.UTC()
		}
		if resolved.Valid {
			t := resolved.Time.UTC()
			c.ResolvedAt = &t
		}
		notes = append(notes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit notes: %w", err)
	}
	return notes, nil
}

// writeChildren дописывает новые платежи (они неизменяемы, ключом служит порядковый номер)
// и синхронизирует статусы кредит-нот.
func writeChildren(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for i, p := range order.Payments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_payments (order_id, seq, id, amount, paid_at, transaction_id, mode, notes, recorded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (order_id, seq) DO NOTHING
		`, order.ID, i, p.ID, p.Amount, p.Date, p.TransactionID, string(p.Mode), p.Notes, p.RecordedAt); err != nil {
			return fmt.Errorf("insert order payment: %w", err)
		}
	}

	for i, c := range order.CreditNotes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_credit_notes (
				order_id, id, seq, amount, reason, linked_order_id, note_date, status, notes, issued_at, resolved_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (order_id, id) DO UPDATE
			SET status = EXCLUDED.status,
			    linked_order_id = EXCLUDED.linked_order_id,
			    notes = EXCLUDED.notes,
			    resolved_at = EXCLUDED.resolved_at
		`,
			order.ID, c.ID, i, c.Amount, string(c.Reason), c.LinkedOrderID, nullTime(c.Date),
			string(c.Status), c.Notes, c.IssuedAt, nullTimePtr(c.ResolvedAt),
		); err != nil {
			return fmt.Errorf("upsert credit note: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o              domain.Order
		status         string
		rawStatus      string
		financial      string
		completion     sql.NullTime
		advanceAmount  decimal.NullDecimal
		advanceDate    sql.NullTime
		advanceTxID    sql.NullString
		advanceMode    sql.NullString
		advanceRecAt   sql.NullTime
		creditPeriod   int
		advancePercent decimal.Decimal
	)

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ProductID, &o.Currency,
		&o.QuantityOrdered, &o.QuantityDelivered, &o.SellingPrice, &o.DeliveryCost,
		&o.DeliveryDate, &completion, &status,
		&advanceAmount, &advanceDate, &advanceTxID, &advanceMode, &advanceRecAt,
		&rawStatus, &o.RawMaterialConsumption.ConsumedQuantity, &o.RawMaterialConsumption.Locked,
		&creditPeriod, &o.PaymentTerms.AdvanceRequired, &advancePercent,
		&financial, &o.Totals.TotalOrderValue, &o.Totals.TotalPaidAmount, &o.Totals.UnadjustedCreditTotal,
		&o.Totals.PendingAmount, &o.Totals.DeliveredValue, &o.ReconciledAt,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Status = domain.OrderStatus(status)
	o.FinancialStatus = domain.FinancialStatus(financial)
	o.RawMaterialConsumption.Status = domain.RawMaterialStatus(rawStatus)
	o.PaymentTerms.CreditPeriodDays = creditPeriod
	o.PaymentTerms.AdvancePercentage = advancePercent
	o.DeliveryDate = o.DeliveryDate.UTC()
	if completion.Valid {
		t := completion.Time.UTC()
		o.OrderCompletionDate = &t
	}
	if advanceAmount.Valid {
		o.AdvancePayment = &domain.AdvancePayment{
			Amount:        advanceAmount.Decimal,
			Date:          advanceDate.Time.UTC(),
			TransactionID: advanceTxID.String,
			Mode:          domain.PaymentMode(advanceMode.String),
			RecordedAt:    advanceRecAt.Time.UTC(),
		}
	}
	return o, nil
}

// orderArgs раскладывает заказ в порядке orderColumns ($1..$32).
func orderArgs(o domain.Order) []any {
	var (
		advanceAmount decimal.NullDecimal
		advanceDate   sql.NullTime
		advanceTxID   sql.NullString
		advanceMode   sql.NullString
		advanceRecAt  sql.NullTime
	)
	if a := o.AdvancePayment; a != nil {
		advanceAmount = decimal.NullDecimal{Decimal: a.Amount, Valid: true}
		advanceDate = nullTime(a.Date)
		advanceTxID = sql.NullString{String: a.TransactionID, Valid: true}
		advanceMode = sql.NullString{String: string(a.Mode), Valid: true}
		advanceRecAt = nullTime(a.RecordedAt)
	}

	return []any{
		o.ID, o.CustomerID, o.ProductID, o.Currency,
		o.QuantityOrdered, o.QuantityDelivered, o.SellingPrice, o.DeliveryCost,
		o.DeliveryDate, nullTimePtr(o.OrderCompletionDate), string(o.Status),
		advanceAmount, advanceDate, advanceTxID, advanceMode, advanceRecAt,
		string(o.RawMaterialConsumption.Status), o.RawMaterialConsumption.ConsumedQuantity, o.RawMaterialConsumption.Locked,
		o.PaymentTerms.CreditPeriodDays, o.PaymentTerms.AdvanceRequired, o.PaymentTerms.AdvancePercentage,
		string(o.FinancialStatus), o.Totals.TotalOrderValue, o.Totals.TotalPaidAmount, o.Totals.UnadjustedCreditTotal,
		o.Totals.PendingAmount, o.Totals.DeliveredValue, o.ReconciledAt,
		o.Version, o.CreatedAt, o.UpdatedAt,
	}
}

func orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullTime(*t)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
