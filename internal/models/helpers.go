// Package models defines the records ragbench stores in SurrealDB.
package models

import (
	"fmt"
	"strconv"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString extracts the key of a SurrealDB RecordID as a string.
// Integer keys are formatted in base 10; other key types are an error.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	switch v := id.ID.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	default:
		return "", fmt.Errorf("unexpected ID type: %T (expected string or integer)", id.ID)
	}
}

// MustRecordIDString extracts the string ID, panicking if not a string or integer.
func MustRecordIDString(id surrealmodels.RecordID) string {
	s, err := RecordIDString(id)
	if err != nil {
		panic(err)
	}
	return s
}
