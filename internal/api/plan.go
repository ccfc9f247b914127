package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vultisig/sip/types"
)

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Server) CreatePlan(c echo.Context) error {
	var req types.CreatePlanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(MsgInvalidRequest))
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(
			"wallet_id, from_token, to_token, amount, and frequency are required",
			err.Error(),
		))
	}

	res, err := s.planService.Create(c.Request().Context(), req)
	if err != nil {
		return s.errorResponse(c, err, "failed to create plan")
	}
	return c.JSON(http.StatusCreated, NewSuccessResponse(http.StatusCreated, res))
}

func (s *Server) GetWalletPlans(c echo.Context) error {
	walletID := c.Param("wallet_id")
	if walletID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(msgRequiredWalletID))
	}

	plans, err := s.planService.ListByWallet(c.Request().Context(), walletID)
	if err != nil {
		return s.errorResponse(c, err, "failed to list plans")
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, plans))
}

func (s *Server) GetPlan(c echo.Context) error {
	planID, ok := s.planIDParam(c)
	if !ok {
		return nil
	}

	plan, err := s.planService.Get(c.Request().Context(), planID)
	if err != nil {
		return s.errorResponse(c, err, "failed to get plan")
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, plan))
}

func (s *Server) GetPlanExecutions(c echo.Context) error {
	planID, ok := s.planIDParam(c)
	if !ok {
		return nil
	}

	executions, err := s.planService.ListExecutions(c.Request().Context(), planID)
	if err != nil {
		return s.errorResponse(c, err, "failed to list plan executions")
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, executions))
}

func (s *Server) UpdatePlanStatus(c echo.Context) error {
	planID, ok := s.planIDParam(c)
	if !ok {
		return nil
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(MsgInvalidRequest))
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage("status is required"))
	}

	plan, err := s.planService.UpdateStatus(c.Request().Context(), planID, c.Param("wallet_id"), req.Status)
	if err != nil {
		return s.errorResponse(c, err, "failed to update plan status")
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, plan))
}

func (s *Server) UpdatePlan(c echo.Context) error {
	planID, ok := s.planIDParam(c)
	if !ok {
		return nil
	}

	var req types.PlanUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(MsgInvalidRequest))
	}

	plan, err := s.planService.Update(c.Request().Context(), planID, c.Param("wallet_id"), req)
	if err != nil {
		return s.errorResponse(c, err, "failed to update plan")
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, plan))
}

func (s *Server) ExecutePlan(c echo.Context) error {
	planID, ok := s.planIDParam(c)
	if !ok {
		return nil
	}

	res, err := s.planService.ExecuteNow(c.Request().Context(), planID)
	if err != nil {
		return s.errorResponse(c, err, "failed to execute plan")
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, map[string]any{
		"sip":            res.Plan,
		"trade":          res.Trade,
		"next_execution": res.NextExecution,
		"attempts":       res.Attempts,
	}))
}

func (s *Server) DeletePlan(c echo.Context) error {
	planID, ok := s.planIDParam(c)
	if !ok {
		return nil
	}

	if err := s.planService.Delete(c.Request().Context(), planID, c.Param("wallet_id")); err != nil {
		return s.errorResponse(c, err, "failed to delete plan")
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, map[string]string{
		"message": "SIP deleted successfully",
	}))
}

// planIDParam writes the 400 itself and reports ok=false when sip_id is unusable.
func (s *Server) planIDParam(c echo.Context) (uuid.UUID, bool) {
	raw := c.Param("sip_id")
	if raw == "" {
		_ = c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(msgRequiredSipID))
		return uuid.Nil, false
	}
	planID, err := uuid.Parse(raw)
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(msgInvalidSipID))
		return uuid.Nil, false
	}
	return planID, true
}

// errorResponse picks the status code from the error kind; no message parsing here.
func (s *Server) errorResponse(c echo.Context, err error, logMsg string) error {
	kind := types.Classify(err)
	code := types.HTTPStatus(kind)

	var message string
	var validationErr *types.ValidationError
	switch {
	case errors.As(err, &validationErr):
		message = validationErr.Message
	case kind == types.KindValidation:
		message = MsgInvalidRequest
	case kind == types.KindNotFound:
		message = msgPlanNotFound
	case kind == types.KindNotActive:
		message = msgPlanNotActive
	case kind == types.KindInsufficientFunds:
		message = msgNoFunds
	default:
		message = MsgInternalError
	}

	entry := s.logger.WithError(err).WithField("kind", kind.String())
	if code >= http.StatusInternalServerError {
		entry.Error(logMsg)
	} else {
		entry.Warn(logMsg)
	}
	return c.JSON(code, NewErrorResponseWithMessage(message))
}
