package server

import (
	stderrors "errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/Zvbcbcv/chat/domain"
	apperrors "github.com/Zvbcbcv/chat/errors"
	"github.com/Zvbcbcv/chat/projection"
	"github.com/Zvbcbcv/chat/repositories"
	"github.com/Zvbcbcv/chat/search"
	"github.com/Zvbcbcv/chat/services"
)

// HTTPHandler is the thin REST glue around the core: user and friend
// registration for the directory, plus the read-side endpoints the chat
// pages use (conversation list, history, search).
type HTTPHandler struct {
	log           *slog.Logger
	service       services.IChatService
	directory     repositories.IDirectory
	conversations *projection.ConversationIndex
	searchLimit   int
}

func NewHTTPHandler(log *slog.Logger, service services.IChatService,
	directory repositories.IDirectory, conversations *projection.ConversationIndex,
	searchLimit int) *HTTPHandler {
	return &HTTPHandler{
		log:           log,
		service:       service,
		directory:     directory,
		conversations: conversations,
		searchLimit:   searchLimit,
	}
}

func (h *HTTPHandler) Register(app *fiber.App) {
	api := app.Group("/api")
	api.Post("/users", h.createUser)
	api.Post("/friends", h.addFriend)
	api.Get("/conversations/:username", h.listConversations)
	api.Get("/history", h.history)
	api.Get("/search", h.searchMessages)
}

type createUserRequest struct {
	Username string `json:"username"`
}

func (h *HTTPHandler) createUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return fail(c, fiber.StatusBadRequest, "username is required")
	}
	id, err := h.directory.CreateUser(req.Username)
	if err != nil {
		return failFromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "username": req.Username})
}

type addFriendRequest struct {
	Username string `json:"username"`
	Friend   string `json:"friend"`
}

func (h *HTTPHandler) addFriend(c *fiber.Ctx) error {
	var req addFriendRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" || req.Friend == "" {
		return fail(c, fiber.StatusBadRequest, "username and friend are required")
	}
	userID, err := h.directory.ResolveUserID(req.Username)
	if err != nil {
		return failFromError(c, err)
	}
	friendID, err := h.directory.ResolveUserID(req.Friend)
	if err != nil {
		return failFromError(c, err)
	}
	if err := h.directory.AddFriend(userID, friendID); err != nil {
		return failFromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPHandler) listConversations(c *fiber.Ctx) error {
	viewer, err := h.directory.ResolveUserID(c.Params("username"))
	if err != nil {
		return failFromError(c, err)
	}
	summaries, err := h.conversations.Summaries(viewer)
	if err != nil {
		return failFromError(c, err)
	}
	return c.JSON(lo.Map(summaries, func(s domain.ConversationSummary, _ int) fiber.Map {
		return fiber.Map{
			"username":       s.Username,
			"last_message":   s.LastBody,
			"last_timestamp": formatTimestamp(s.LastAt),
			"unread_count":   s.Unread,
		}
	}))
}

// history mirrors opening the chat page: the viewer's unread messages
// from the friend are marked read, then the full history is returned.
func (h *HTTPHandler) history(c *fiber.Ctx) error {
	viewerName := c.Query("user")
	friendName := c.Query("friend")
	if viewerName == "" || friendName == "" {
		return fail(c, fiber.StatusBadRequest, "user and friend are required")
	}
	viewer, err := h.directory.ResolveUserID(viewerName)
	if err != nil {
		return failFromError(c, err)
	}
	friend, err := h.directory.ResolveUserID(friendName)
	if err != nil {
		return failFromError(c, err)
	}
	history, err := h.service.OpenConversation(viewer, friend)
	if err != nil {
		return failFromError(c, err)
	}
	return c.JSON(lo.Map(history, func(m domain.Message, _ int) fiber.Map {
		sender := viewerName
		if m.SenderID == friend {
			sender = friendName
		}
		return fiber.Map{
			"sender":    sender,
			"body":      m.Body,
			"timestamp": formatTimestamp(m.CreatedAt),
			"read":      m.Read,
		}
	}))
}

func (h *HTTPHandler) searchMessages(c *fiber.Ctx) error {
	viewerName := c.Query("user")
	terms := c.Query("q")
	if viewerName == "" || terms == "" {
		return fail(c, fiber.StatusBadRequest, "user and q are required")
	}
	viewer, err := h.directory.ResolveUserID(viewerName)
	if err != nil {
		return failFromError(c, err)
	}
	hits, err := h.service.SearchMessages(c.Context(), viewer, terms, c.QueryInt("limit", h.searchLimit))
	if err != nil {
		return failFromError(c, err)
	}
	return c.JSON(lo.Map(hits, func(hit search.Hit, _ int) fiber.Map {
		return fiber.Map{
			"room":      hit.RoomKey,
			"sender":    hit.Sender,
			"body":      hit.Body,
			"timestamp": formatTimestamp(hit.At),
		}
	}))
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func failFromError(c *fiber.Ctx, err error) error {
	switch {
	case stderrors.Is(err, apperrors.ErrUserNotFound):
		return fail(c, fiber.StatusNotFound, err.Error())
	case stderrors.Is(err, apperrors.ErrUserAlreadyExists):
		return fail(c, fiber.StatusConflict, err.Error())
	case stderrors.Is(err, apperrors.ErrBannedUsername):
		return fail(c, fiber.StatusUnprocessableEntity, err.Error())
	case stderrors.Is(err, apperrors.ErrAlreadyFriends):
		return fail(c, fiber.StatusConflict, err.Error())
	case stderrors.Is(err, apperrors.ErrSelfFriendship):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case stderrors.Is(err, apperrors.ErrInvalidRoom):
		return fail(c, fiber.StatusBadRequest, err.Error())
	default:
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
}
