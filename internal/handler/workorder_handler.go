package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/repository"
	"github.com/kursadbilgin/fieldops/internal/service"
)

type WorkOrderService interface {
	Get(ctx context.Context, orderNumber string) (*domain.WorkOrder, error)
	List(ctx context.Context, params repository.WorkOrderListParams) (*service.WorkOrderPage, error)
	Summary(ctx context.Context) ([]domain.StatusCount, error)
	UpdateStatus(ctx context.Context, orderNumber string, rawStatus string) (*domain.WorkOrder, error)
}

type WorkOrderHandler struct {
	service WorkOrderService
}

func NewWorkOrderHandler(service WorkOrderService) (*WorkOrderHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("work order service is required")
	}
	return &WorkOrderHandler{service: service}, nil
}

func RegisterWorkOrderRoutes(router fiber.Router, service WorkOrderService) error {
	h, err := NewWorkOrderHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/work-orders", h.ListWorkOrders)
	v1.Get("/work-orders/summary", h.Summary)
	v1.Get("/work-orders/:orderNumber", h.GetWorkOrder)
	v1.Patch("/work-orders/:orderNumber/status", h.UpdateStatus)

	return nil
}

type listWorkOrdersQuery struct {
	Status   string `query:"status"`
	DriverID string `query:"driverId"`
	From     string `query:"from"`
	To       string `query:"to"`
	Page     *int   `query:"page" validate:"omitempty,min=1"`
	PageSize *int   `query:"pageSize" validate:"omitempty,min=1,max=100"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type listWorkOrdersResponse struct {
	Data []domain.WorkOrder `json:"data"`
	Meta listMeta           `json:"meta"`
}

type summaryResponse struct {
	Total  int                  `json:"total"`
	Counts []domain.StatusCount `json:"counts"`
}

func (h *WorkOrderHandler) ListWorkOrders(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	page, err := h.service.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	items := page.Items
	if items == nil {
		items = []domain.WorkOrder{}
	}
	return c.Status(fiber.StatusOK).JSON(listWorkOrdersResponse{
		Data: items,
		Meta: listMeta{Page: page.Page, PageSize: page.PageSize, Total: page.Total},
	})
}

func (h *WorkOrderHandler) Summary(c *fiber.Ctx) error {
	counts, err := h.service.Summary(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	total := 0
	for _, count := range counts {
		total += count.Count
	}
	if counts == nil {
		counts = []domain.StatusCount{}
	}
	return c.Status(fiber.StatusOK).JSON(summaryResponse{Total: total, Counts: counts})
}

func (h *WorkOrderHandler) GetWorkOrder(c *fiber.Ctx) error {
	order, err := h.service.Get(c.UserContext(), c.Params("orderNumber"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *WorkOrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	if err := validateStruct(req); err != nil {
		return toHTTPError(err)
	}

	order, err := h.service.UpdateStatus(c.UserContext(), c.Params("orderNumber"), req.Status)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(order)
}

func parseListParams(c *fiber.Ctx) (repository.WorkOrderListParams, error) {
	var q listWorkOrdersQuery
	if err := c.QueryParser(&q); err != nil {
		return repository.WorkOrderListParams{}, fmt.Errorf("%w: invalid query parameters", domain.ErrValidation)
	}
	if err := validateStruct(q); err != nil {
		return repository.WorkOrderListParams{}, err
	}

	params := repository.WorkOrderListParams{}
	if q.Page != nil {
		params.Page = *q.Page
	}
	if q.PageSize != nil {
		params.PageSize = *q.PageSize
	}

	if raw := strings.TrimSpace(q.Status); raw != "" {
		status, err := domain.ParseWorkOrderStatus(raw)
		if err != nil {
			return repository.WorkOrderListParams{}, err
		}
		params.Status = &status
	}
	if driverID := strings.TrimSpace(q.DriverID); driverID != "" {
		params.DriverID = &driverID
	}

	from, err := parseTimeQuery(q.From, "from", false)
	if err != nil {
		return repository.WorkOrderListParams{}, err
	}
	to, err := parseTimeQuery(q.To, "to", true)
	if err != nil {
		return repository.WorkOrderListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

// parseTimeQuery accepts RFC3339 or a bare date. A bare upper bound covers
// the whole day.
func parseTimeQuery(value string, field string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &t, nil
	}

	day, err := time.Parse(domain.DateLayout, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339 or YYYY-MM-DD", domain.ErrValidation, field)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}
