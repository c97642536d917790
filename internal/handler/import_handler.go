package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/pipeline"
)

// ImportManager controls the service's fetch pipeline.
type ImportManager interface {
	Start(ctx context.Context, params domain.FetchParams) (pipeline.Status, error)
	Pause() (pipeline.Status, bool)
	Resume() (pipeline.Status, bool)
	Reset() pipeline.Status
	Status() pipeline.Status
}

type ImportService interface {
	Import(ctx context.Context, req domain.ImportRequest) (*domain.ImportResult, error)
	GetRun(ctx context.Context, id string) (*domain.ImportRun, error)
}

type ImportHandler struct {
	manager ImportManager
	service ImportService
}

func NewImportHandler(manager ImportManager, service ImportService) (*ImportHandler, error) {
	if manager == nil {
		return nil, fmt.Errorf("import manager is required")
	}
	if service == nil {
		return nil, fmt.Errorf("import service is required")
	}
	return &ImportHandler{manager: manager, service: service}, nil
}

func RegisterImportRoutes(router fiber.Router, manager ImportManager, service ImportService) error {
	h, err := NewImportHandler(manager, service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/imports/fetch", h.StartFetch)
	v1.Get("/imports/fetch", h.FetchStatus)
	v1.Post("/imports/fetch/pause", h.PauseFetch)
	v1.Post("/imports/fetch/resume", h.ResumeFetch)
	v1.Post("/imports/fetch/reset", h.ResetFetch)
	v1.Post("/imports", h.ImportOrders)
	v1.Get("/imports/runs/:id", h.GetRun)

	return nil
}

type startFetchRequest struct {
	StartDate     string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string   `json:"endDate" validate:"required,datetime=2006-01-02"`
	ValidStatuses []string `json:"validStatuses" validate:"required,min=1,dive,required"`
	BatchSize     int      `json:"batchSize" validate:"omitempty,min=1,max=500"`
}

type importOrdersRequest struct {
	RunID     string             `json:"runId"`
	StartDate string             `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string             `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Orders    []domain.WorkOrder `json:"orders" validate:"max=10000"`
}

type controlResponse struct {
	Changed bool            `json:"changed"`
	Status  pipeline.Status `json:"status"`
}

type importRunResponse struct {
	ID         string    `json:"id"`
	StartDate  string    `json:"startDate"`
	EndDate    string    `json:"endDate"`
	Total      int       `json:"total"`
	Imported   int       `json:"imported"`
	Duplicates int       `json:"duplicates"`
	Errors     int       `json:"errors"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (h *ImportHandler) StartFetch(c *fiber.Ctx) error {
	var req startFetchRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	if err := validateStruct(req); err != nil {
		return toHTTPError(err)
	}

	statuses := make([]string, 0, len(req.ValidStatuses))
	for _, s := range req.ValidStatuses {
		statuses = append(statuses, strings.TrimSpace(s))
	}

	status, err := h.manager.Start(c.UserContext(), domain.FetchParams{
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		ValidStatuses: statuses,
		BatchSize:     req.BatchSize,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(status)
}

func (h *ImportHandler) FetchStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.manager.Status())
}

func (h *ImportHandler) PauseFetch(c *fiber.Ctx) error {
	status, changed := h.manager.Pause()
	return c.Status(fiber.StatusOK).JSON(controlResponse{Changed: changed, Status: status})
}

func (h *ImportHandler) ResumeFetch(c *fiber.Ctx) error {
	status, changed := h.manager.Resume()
	return c.Status(fiber.StatusOK).JSON(controlResponse{Changed: changed, Status: status})
}

func (h *ImportHandler) ResetFetch(c *fiber.Ctx) error {
	status := h.manager.Reset()
	return c.Status(fiber.StatusOK).JSON(controlResponse{Changed: true, Status: status})
}

// ImportOrders stores an already-normalized set of work orders.
func (h *ImportHandler) ImportOrders(c *fiber.Ctx) error {
	var req importOrdersRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	if err := validateStruct(req); err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.Import(c.UserContext(), domain.ImportRequest{
		RunID:     strings.TrimSpace(req.RunID),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Orders:    req.Orders,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *ImportHandler) GetRun(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	run, err := h.service.GetRun(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(importRunResponse{
		ID:         run.ID,
		StartDate:  run.StartDate,
		EndDate:    run.EndDate,
		Total:      run.Total,
		Imported:   run.Imported,
		Duplicates: run.Duplicates,
		Errors:     run.Errors,
		Status:     run.Status.String(),
		CreatedAt:  run.CreatedAt,
		UpdatedAt:  run.UpdatedAt,
	})
}
