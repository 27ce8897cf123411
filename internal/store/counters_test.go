package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileCounters(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE nomencladores").
		WillReturnResult(pgxmock.NewResult("UPDATE", 120))
	mock.ExpectExec("UPDATE prestadores").
		WillReturnResult(pgxmock.NewResult("UPDATE", 45))

	require.NoError(t, s.ReconcileCounters(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileCountersCatalogFailureStopsEarly(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE nomencladores").
		WillReturnError(errors.New("relation does not exist"))

	err := s.ReconcileCounters(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile catalog counters")
	assert.NoError(t, mock.ExpectationsWereMet())
}
