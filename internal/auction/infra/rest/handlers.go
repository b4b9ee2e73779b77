// Package rest exposes the auction read paths and order creation over HTTP
package rest

import (
	"errors"

	"github.com/cristianortiz/artAuction/internal/auction/application"
	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/auth"
	"github.com/cristianortiz/artAuction/internal/shared/logger"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

type Handler struct {
	service  application.AuctionService
	validate *validator.Validate
}

func NewHandler(service application.AuctionService) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// Register mounts the routes, everything but the item lookups requires a logged in user
func (h *Handler) Register(router fiber.Router, tokens auth.TokenValidator, users userdomain.Repository) {
	router.Get("/items/:itemId/room", h.getRoom)
	router.Get("/items/:itemId/highest-bid", h.getHighestBid)

	requireUser := auth.RequireUser(tokens, users)
	router.Get("/bids", requireUser, h.listBids)
	router.Get("/orders", requireUser, h.listOrders)
	router.Post("/orders", requireUser, h.createOrder)
}

func (h *Handler) getRoom(c *fiber.Ctx) error {
	itemID, err := uuid.Parse(c.Params("itemId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item id")
	}
	room, err := h.service.FindRoom(c.UserContext(), itemID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(room)
}

func (h *Handler) getHighestBid(c *fiber.Ctx) error {
	itemID, err := uuid.Parse(c.Params("itemId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid item id")
	}
	highest, err := h.service.FindHighest(c.UserContext(), itemID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(highest)
}

func (h *Handler) listBids(c *fiber.Ctx) error {
	page, err := h.service.ListBids(c.UserContext(), auth.CurrentUser(c).ID,
		c.QueryInt("page", 1), c.QueryInt("limit", application.DefaultPageSize))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(page)
}

func (h *Handler) listOrders(c *fiber.Ctx) error {
	page, err := h.service.ListOrders(c.UserContext(), auth.CurrentUser(c).ID,
		c.QueryInt("page", 1), c.QueryInt("limit", application.DefaultPageSize))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(page)
}

func (h *Handler) createOrder(c *fiber.Ctx) error {
	var shipping domain.ShippingDetails
	if err := c.BodyParser(&shipping); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(shipping); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	order, err := h.service.CreateOrder(c.UserContext(), shipping, auth.CurrentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		log.Error("REST request failed", zap.Error(err))
		return fiber.ErrInternalServerError
	}
}
