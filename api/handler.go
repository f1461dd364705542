package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/chartline-org/chartline/delta"
	"github.com/chartline-org/chartline/encounters"
	"github.com/chartline-org/chartline/orders"
	"github.com/chartline-org/chartline/problems"
)

type Handler struct {
	Delta    delta.Service
	Signing  encounters.Coordinator
	Ledger   problems.Ledger
	Problems problems.Repository
}

type HandlerParams struct {
	fx.In

	Delta    delta.Service
	Signing  encounters.Coordinator
	Ledger   problems.Ledger
	Problems problems.Repository
}

func NewHandler(p HandlerParams) (*Handler, error) {
	return &Handler{
		Delta:    p.Delta,
		Signing:  p.Signing,
		Ledger:   p.Ledger,
		Problems: p.Problems,
	}, nil
}

type ProcessDeltaRequest struct {
	Text       string     `json:"text"`
	ProviderId string     `json:"providerId"`
	NoteDate   *time.Time `json:"noteDate,omitempty"`
}

// (POST /v1/patients/{patientId}/encounters/{encounterId}/delta)
func (h *Handler) ProcessDelta(ctx echo.Context, patientId, encounterId string) error {
	body := ProcessDeltaRequest{}
	if err := ctx.Bind(&body); err != nil {
		return err
	}

	request := delta.ProcessRequest{
		PatientId:   patientId,
		EncounterId: encounterId,
		Text:        body.Text,
		ProviderId:  body.ProviderId,
	}
	if body.NoteDate != nil {
		request.NoteDate = *body.NoteDate
	}

	summary, err := h.Delta.Process(ctx.Request().Context(), request)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, summary)
}

type SignEncounterRequest struct {
	ProviderId string  `json:"providerId"`
	Note       *string `json:"note,omitempty"`
	Force      bool    `json:"force,omitempty"`
}

type SignEncounterResponse struct {
	CanSign  bool       `json:"canSign"`
	Errors   []string   `json:"errors,omitempty"`
	SignedAt *time.Time `json:"signedAt,omitempty"`
}

// (POST /v1/encounters/{encounterId}/sign)
func (h *Handler) SignEncounter(ctx echo.Context, encounterId string) error {
	body := SignEncounterRequest{}
	if err := ctx.Bind(&body); err != nil {
		return err
	}

	result, err := h.Signing.Sign(ctx.Request().Context(), encounters.SignRequest{
		EncounterId: encounterId,
		ProviderId:  body.ProviderId,
		Note:        body.Note,
		Force:       body.Force,
	})
	if err != nil {
		return err
	}

	response := SignEncounterResponse{
		CanSign:  result.CanSign,
		Errors:   result.Errors,
		SignedAt: result.SignedAt,
	}
	status := http.StatusOK
	if !result.CanSign {
		status = http.StatusUnprocessableEntity
	}
	return ctx.JSON(status, response)
}

// (GET /v1/problems/{problemId}/history)
func (h *Handler) GetVisitHistory(ctx echo.Context, problemId string) error {
	history, err := h.Ledger.GetVisitHistory(ctx.Request().Context(), problemId)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, history)
}

// (GET /v1/problems/{problemId}/changelog)
func (h *Handler) GetChangeLog(ctx echo.Context, problemId string) error {
	entries, err := h.Problems.ChangeLog(ctx.Request().Context(), problemId)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, entries)
}

// (GET /v1/patients/{patientId}/problems)
func (h *Handler) ListProblems(ctx echo.Context, patientId string) error {
	var statuses []problems.Status
	if ctx.QueryParam("open") == "true" {
		statuses = problems.OpenStatuses()
	}

	list, err := h.Problems.ListForPatient(ctx.Request().Context(), patientId, statuses)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, list)
}

type MergeOrdersRequest struct {
	Fast     []orders.Order `json:"fast"`
	Thorough []orders.Order `json:"thorough"`
}

// (POST /v1/orders/merge)
func (h *Handler) MergeOrders(ctx echo.Context) error {
	body := MergeOrdersRequest{}
	if err := ctx.Bind(&body); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, orders.Merge(body.Fast, body.Thorough))
}
