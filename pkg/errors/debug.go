package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v84"
)

// ErrorDump is what gets logged for a failed request: the wrap chain plus
// whatever Postgres or Stripe reported underneath it.
type ErrorDump struct {
	TopMessage string      `json:"top_message"`
	Code       Code        `json:"code,omitempty"`
	Chain      []string    `json:"chain,omitempty"`
	Postgres   *PGDiag     `json:"postgres,omitempty"`
	Stripe     *StripeDiag `json:"stripe,omitempty"`
}

type PGDiag struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

type StripeDiag struct {
	Type       string `json:"type,omitempty"`
	Code       string `json:"code,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.Postgres = pgDiag(err)

	var se *stripe.Error
	if errors.As(err, &se) {
		d.Stripe = &StripeDiag{
			Type:       string(se.Type),
			Code:       string(se.Code),
			HTTPStatus: se.HTTPStatusCode,
			RequestID:  se.RequestID,
		}
	}
	return d
}

// pgDiag understands both drivers: gorm's postgres dialector surfaces pgx
// errors, raw database/sql callers surface lib/pq.
func pgDiag(err error) *PGDiag {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDiag{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDiag{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// Fields flattens the dump for structured logging.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		fields["pg_constraint"] = pg.Constraint
		fields["pg_table"] = pg.Table
		fields["pg_detail"] = pg.Detail
	}
	if s := d.Stripe; s != nil {
		fields["stripe_error_type"] = s.Type
		fields["stripe_error_code"] = s.Code
		fields["stripe_request_id"] = s.RequestID
	}
	return fields
}
