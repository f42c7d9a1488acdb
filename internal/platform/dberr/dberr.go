package dberr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type Kind string

const (
	KindUnique   Kind = "unique"
	KindEnum     Kind = "enum"
	KindRequired Kind = "required"
	KindLength   Kind = "length"
	KindUnknown  Kind = "unknown"
)

// Violation is a field-level rejection, either raised by model validation
// before a write or classified from a storage error after one.
type Violation struct {
	Kind       Kind
	Table      string
	Field      string
	Constraint string
	Detail     string
	Err        error
}

func (v *Violation) Error() string {
	if v == nil {
		return ""
	}
	msg := fmt.Sprintf("%s violation on %s", v.Kind, v.Field)
	if v.Detail != "" {
		msg += ": " + v.Detail
	}
	return msg
}

func (v *Violation) Unwrap() error { return v.Err }

func New(kind Kind, field, detail string) *Violation {
	return &Violation{Kind: kind, Field: field, Detail: detail}
}

// HasField reports whether the violation names field. Composite unique keys
// are stored comma separated.
func (v *Violation) HasField(field string) bool {
	if v == nil {
		return false
	}
	for _, f := range strings.Split(v.Field, ",") {
		if strings.TrimSpace(f) == field {
			return true
		}
	}
	return false
}

// Classify maps err into a Violation. It returns nil when err is nil and a
// KindUnknown violation for errors it cannot attribute to a field.
func Classify(err error) *Violation {
	if err == nil {
		return nil
	}
	var v *Violation
	if errors.As(err, &v) {
		return v
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPg(pgErr)
	}
	return fromMessage(err)
}

func IsUnique(err error) bool {
	v := Classify(err)
	return v != nil && v.Kind == KindUnique
}

func fromPg(e *pgconn.PgError) *Violation {
	out := &Violation{Kind: KindUnknown, Table: e.TableName, Field: e.ColumnName, Constraint: e.ConstraintName, Detail: e.Message, Err: e}
	switch e.Code {
	case "23505":
		out.Kind = KindUnique
		if out.Field == "" {
			out.Field = fieldsFromDetail(e.Detail)
		}
		if out.Field == "" {
			out.Field = fieldFromConstraint(e.ConstraintName, e.TableName)
		}
	case "23502":
		out.Kind = KindRequired
	case "23514", "22P02":
		out.Kind = KindEnum
		if out.Field == "" {
			out.Field = fieldFromConstraint(e.ConstraintName, e.TableName)
		}
	case "22001":
		out.Kind = KindLength
	}
	return out
}

var pgKeyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)

func fieldsFromDetail(detail string) string {
	m := pgKeyDetail.FindStringSubmatch(detail)
	if len(m) < 2 {
		return ""
	}
	parts := strings.Split(m[1], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ",")
}

// fieldFromConstraint handles gorm's idx_<table>_<field> naming.
func fieldFromConstraint(constraint, table string) string {
	c := strings.TrimPrefix(constraint, "idx_")
	c = strings.TrimPrefix(c, "uniq_")
	if table != "" {
		c = strings.TrimPrefix(c, table+"_")
	}
	return c
}

var sqliteConstraint = regexp.MustCompile(`(UNIQUE|NOT NULL|CHECK) constraint failed: (.+)$`)

func fromMessage(err error) *Violation {
	msg := err.Error()
	m := sqliteConstraint.FindStringSubmatch(msg)
	if len(m) < 3 {
		return &Violation{Kind: KindUnknown, Detail: msg, Err: err}
	}
	out := &Violation{Detail: msg, Err: err}
	switch m[1] {
	case "UNIQUE":
		out.Kind = KindUnique
	case "NOT NULL":
		out.Kind = KindRequired
	default:
		out.Kind = KindEnum
	}
	var fields []string
	for _, col := range strings.Split(m[2], ",") {
		col = strings.TrimSpace(col)
		if i := strings.LastIndex(col, "."); i >= 0 {
			if out.Table == "" {
				out.Table = col[:i]
			}
			col = col[i+1:]
		}
		fields = append(fields, col)
	}
	out.Field = strings.Join(fields, ",")
	return out
}
