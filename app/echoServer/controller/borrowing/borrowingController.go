package borrowing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mblazhko/library-service/model"
	bs "github.com/mblazhko/library-service/service/borrowing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc     bs.Service
	Sweeper bs.Sweeper
	V       *validator.Validate
	Log     *slog.Logger
}

func viewer(c echo.Context) bs.Viewer {
	uid, _ := c.Get("user_id").(int64)
	role, _ := c.Get("role").(string)
	return bs.Viewer{UserID: uid, Admin: role == model.RoleAdmin}
}

// POST /v1/borrowings
func (h *Controller) Create(c echo.Context) error {
	var req CreateBorrowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	v := viewer(c)

	b, err := h.Svc.Create(c.Request().Context(), v.UserID, req.BookID, req.ExpectedReturnDate)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrNoCopies:
			return c.JSON(http.StatusConflict, echo.Map{"message": "no copies available"})
		case bs.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case bs.ErrPastDue:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "expected_return_date is in the past"})
		default:
			h.Log.Error("borrowing create", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}

	return c.JSON(http.StatusCreated, b)
}

// POST /v1/borrowings/:id/return
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	if err := h.Svc.Return(c.Request().Context(), viewer(c), id); err != nil {
		switch bs.Code(err) {
		case bs.ErrNotOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		case bs.ErrAlreadyReturned:
			return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing already returned"})
		case bs.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		default:
			h.Log.Error("borrowing return", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "returned"})
}

// GET /v1/borrowings?is_active=&user_id=
func (h *Controller) List(c echo.Context) error {
	var f bs.Filter

	if s := c.QueryParam("is_active"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid is_active"})
		}
		f.IsActive = &b
	}
	if s := c.QueryParam("user_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid user_id"})
		}
		f.UserID = &id
	}

	rows, err := h.Svc.List(c.Request().Context(), viewer(c), f)
	if err != nil {
		h.Log.Error("borrowing list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/borrowings/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	d, err := h.Svc.Get(c.Request().Context(), viewer(c), id)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case bs.ErrNotOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		default:
			h.Log.Error("borrowing detail", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, d)
}

// POST /v1/borrowings/due-sweep  (admin, hit by the external scheduler)
func (h *Controller) DueSweep(c echo.Context) error {
	role, _ := c.Get("role").(string)
	if role != model.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}

	rep, err := h.Sweeper.SweepDueSoon(c.Request().Context(), time.Now().UTC())
	if err != nil {
		h.Log.Error("due sweep", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, rep)
}
