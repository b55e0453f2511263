package repositories

import (
	"database/sql"
	"strconv"
)

// requireRowAffected converts a zero-row UPDATE/DELETE result into ErrNotFound.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// itoa is strconv.Itoa, shortened for building positional query placeholders.
func itoa(n int) string {
	return strconv.Itoa(n)
}
