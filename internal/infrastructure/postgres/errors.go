package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/pong-user-directory/internal/domain"
)

type constraintInfo struct {
	entity string
	field  string
	reason string
}

// constraints names every constraint created by the migrations.
var constraints = map[string]constraintInfo{
	"users_login_key":                     {entity: "user", field: "login"},
	"users_nickname_key":                  {entity: "user", field: "nickname"},
	"users_login_not_blank":               {entity: "user", field: "login", reason: "must not be blank"},
	"users_nickname_not_blank":            {entity: "user", field: "nickname", reason: "must not be blank"},
	"users_tfa_consistency":               {entity: "user", field: "tfa_secret", reason: "must be set exactly when tfa_enabled is true"},
	"channels_name_key":                   {entity: "channel", field: "name"},
	"channels_name_not_blank":             {entity: "channel", field: "name", reason: "must not be blank"},
	"channels_owner_id_fkey":              {entity: "user", field: "id"},
	"channel_members_channel_id_fkey":     {entity: "channel", field: "id"},
	"channel_members_user_id_fkey":        {entity: "user", field: "id"},
	"blocked_users_pair_key":              {entity: "blocked user", field: "pair"},
	"blocked_users_not_self":              {entity: "blocked user", field: "blocked_user_id", reason: "must differ from blocking_user_id"},
	"blocked_users_blocking_user_id_fkey": {entity: "user", field: "id"},
	"blocked_users_blocked_user_id_fkey":  {entity: "user", field: "id"},
}

// detailKey matches "Key (nickname)=(mmarvin) ..." in PgError.Detail.
var detailKey = regexp.MustCompile(`^Key \(([^)]*)\)=\((.*)\) `)

// translate maps a pgx error onto the domain error taxonomy. Errors it cannot
// classify are wrapped with op and carry no domain sentinel.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if mapped := fromPgError(pgErr); mapped != nil {
			return mapped
		}
		if unavailableCode(pgErr.Code) {
			return &domain.StorageUnavailableError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		errors.As(err, &netErr):
		return &domain.StorageUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func fromPgError(pgErr *pgconn.PgError) error {
	info, known := constraints[pgErr.ConstraintName]
	switch pgErr.Code {
	case "23505": // unique_violation
		_, value := detailValue(pgErr.Detail)
		if !known {
			info = constraintInfo{entity: strings.TrimSuffix(pgErr.TableName, "s"), field: pgErr.ConstraintName}
		}
		return &domain.ConflictError{Entity: info.entity, Field: info.field, Value: value, Err: pgErr}
	case "23503": // foreign_key_violation
		_, value := detailValue(pgErr.Detail)
		if !known {
			info = constraintInfo{entity: "record", field: "id"}
		}
		return &domain.NotFoundError{Entity: info.entity, Key: info.field, Value: value}
	case "23514": // check_violation
		if !known {
			return domain.NewValidationError(pgErr.ConstraintName, "violates check constraint")
		}
		return domain.NewValidationError(info.field, info.reason)
	case "23502": // not_null_violation
		return domain.NewValidationError(columnOr(pgErr), "is required")
	case "22001": // string_data_right_truncation
		return domain.NewValidationError(columnOr(pgErr), "is too long")
	}
	return nil
}

func unavailableCode(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"), // connection_exception
		strings.HasPrefix(code, "53"), // insufficient_resources
		code == "57P01", code == "57P02", code == "57P03":
		return true
	}
	return false
}

func detailValue(detail string) (key, value string) {
	m := detailKey.FindStringSubmatch(detail)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

func columnOr(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	return "payload"
}
