package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_DefinesTables(t *testing.T) {
	schema := Schema()

	for _, table := range []string{"decisions", "explainable_receipts", "audit_entries"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table, "schema should create %s", table)
	}
	assert.Contains(t, schema, "idempotency_key  TEXT NOT NULL UNIQUE")
}

func TestSchema_IsIdempotent(t *testing.T) {
	for _, line := range strings.Split(Schema(), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "CREATE ") {
			assert.Contains(t, line, "IF NOT EXISTS", "statement must be re-runnable: %s", line)
		}
	}
}

func TestDecisionType(t *testing.T) {
	d := Decision{
		CandidateID: "cand-1",
		JobTitle:    "Engineer",
	}

	assert.Equal(t, "cand-1", d.CandidateID)
	assert.Nil(t, d.Card)
}
