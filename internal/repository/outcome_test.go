package repository

import (
	"testing"

	"TasaPull/internal/domain/models"
	domrepo "TasaPull/internal/domain/repository"
	"TasaPull/pkg/util"

	"github.com/stretchr/testify/assert"
)

func TestDayRecordsApplyMatchesBulkUpsertCounts(t *testing.T) {
	recs := dayRecords{}
	recs.apply(models.ICL, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 1}})

	out := recs.apply(models.CER, []models.Entry{
		{Fecha: d(2024, 1, 1), Valor: 2}, // record exists, field is new
		{Fecha: d(2024, 1, 2), Valor: 2}, // no record
	})
	assert.Equal(t, domrepo.WriteOutcome{Matched: 1, Modified: 1, Upserted: 1}, out)

	out = recs.apply(models.CER, []models.Entry{{Fecha: d(2024, 1, 1), Valor: 2}})
	assert.Equal(t, domrepo.WriteOutcome{Matched: 1}, out, "unchanged values match without modifying")
	assert.Equal(t, 1.0, recs[util.DayKey(d(2024, 1, 1))][models.ICL])
}
