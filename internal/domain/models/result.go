package models

import "time"

// Status of an entry-point run, for expected outcomes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Result is the structured outcome returned by engine entry points.
type Result struct {
	Status   Status                 `json:"status"`
	TipoTasa RateType               `json:"tipoTasa,omitempty"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// UpsertResult classifies a bulk write.
type UpsertResult struct {
	Matched            int         `json:"matched"`
	Modified           int         `json:"modified"`
	Inserted           int         `json:"inserted"`
	FechasInsertadas   []time.Time `json:"fechasInsertadas"`
	FechasActualizadas []time.Time `json:"fechasActualizadas"`
}

// Changed reports whether the write inserted or modified anything.
func (r UpsertResult) Changed() bool { return r.Inserted > 0 || r.Modified > 0 }

// VerifyReport is returned by the gap tracker.
type VerifyReport struct {
	TipoTasa            RateType  `json:"tipoTasa"`
	Status              Status    `json:"status"`
	FechaInicio         string    `json:"fechaInicio"`
	FechaUltima         string    `json:"fechaUltima"`
	FechaUltimaCompleta string    `json:"fechaUltimaCompleta,omitempty"`
	TotalDias           int       `json:"totalDias"`
	DiasExistentes      int       `json:"diasExistentes"`
	DiasFaltantes       int       `json:"diasFaltantes"`
	FechasFaltantes     []string  `json:"fechasFaltantes"`
	VerificadoEn        time.Time `json:"verificadoEn"`
}

// UpdateEvent is published after a batch of values was written for a rate type.
type UpdateEvent struct {
	TipoTasa           RateType  `json:"tipoTasa"`
	FechasInsertadas   []string  `json:"fechasInsertadas"`
	FechasActualizadas []string  `json:"fechasActualizadas"`
	Origen             string    `json:"origen"`
	Timestamp          time.Time `json:"timestamp"`
}
