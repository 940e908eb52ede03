package mailstub

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"google.golang.org/api/gmail/v1"
)

const defaultPageSize = 100

type Handler struct {
	store    *Store
	validate *validator.Validate
}

func NewHandler(store *Store) *Handler {
	return &Handler{
		store:    store,
		validate: validator.New(),
	}
}

// ListMessages lists message ids like users.messages.list
// @Summary List messages
// @Description Lists ids of messages, newest first. Only the to: search operator is supported.
// @Tags Gmail
// @Produce json
// @Security BearerAuth
// @Param user path string true "User id, usually me"
// @Param q query string false "Search query, e.g. to:qa+x@example.com"
// @Param labelIds query string false "Only messages with this label"
// @Param maxResults query int false "Page size (default 100)"
// @Param pageToken query string false "Page token from a previous response"
// @Success 200 {object} gmail.ListMessagesResponse
// @Failure 400 {object} gmailError
// @Failure 401 {object} gmailError
// @Router /gmail/v1/users/{user}/messages [get]
func (h *Handler) ListMessages(c echo.Context) error {
	pageSize := defaultPageSize
	if v := c.QueryParam("maxResults"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return gmailErrorJSON(c, http.StatusBadRequest, "invalid maxResults")
		}
		pageSize = n
	}
	offset := 0
	if v := c.QueryParam("pageToken"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return gmailErrorJSON(c, http.StatusBadRequest, "invalid pageToken")
		}
		offset = n
	}

	ids := h.store.List(c.QueryParam("labelIds"), recipientFromQuery(c.QueryParam("q")))

	resp := &gmail.ListMessagesResponse{ResultSizeEstimate: int64(len(ids))}
	if offset < len(ids) {
		end := min(offset+pageSize, len(ids))
		for _, id := range ids[offset:end] {
			resp.Messages = append(resp.Messages, &gmail.Message{Id: id, ThreadId: id})
		}
		if end < len(ids) {
			resp.NextPageToken = strconv.Itoa(end)
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// GetMessage returns one message like users.messages.get with format=full
// @Summary Get a message
// @Tags Gmail
// @Produce json
// @Security BearerAuth
// @Param user path string true "User id, usually me"
// @Param id path string true "Message id"
// @Success 200 {object} gmail.Message
// @Failure 401 {object} gmailError
// @Failure 404 {object} gmailError
// @Router /gmail/v1/users/{user}/messages/{id} [get]
func (h *Handler) GetMessage(c echo.Context) error {
	msg, ok := h.store.Get(c.Param("id"))
	if !ok {
		return gmailErrorJSON(c, http.StatusNotFound, "Requested entity was not found.")
	}
	return c.JSON(http.StatusOK, msg)
}

// Deliver stores a message
// @Summary Deliver a message
// @Description Adds a message to the mailbox. Labels default to INBOX.
// @Tags Stub
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param message body DeliverRequest true "Message to deliver"
// @Success 201 {object} DeliverResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /stub/messages [post]
func (h *Handler) Deliver(c echo.Context) error {
	var req DeliverRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	id := h.store.Deliver(req)
	return c.JSON(http.StatusCreated, DeliverResponse{ID: id})
}

// Reset empties the mailbox
// @Summary Delete all messages
// @Tags Stub
// @Security BearerAuth
// @Success 204
// @Router /stub/messages [delete]
func (h *Handler) Reset(c echo.Context) error {
	h.store.Reset()
	return c.NoContent(http.StatusNoContent)
}

// Health reports liveness
// @Summary Health check
// @Tags Stub
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// recipientFromQuery extracts the address of a to: operator from a Gmail search query.
func recipientFromQuery(q string) string {
	for _, term := range strings.Fields(q) {
		if addr, ok := strings.CutPrefix(strings.ToLower(term), "to:"); ok {
			return strings.Trim(addr, `"`)
		}
	}
	return ""
}

func gmailErrorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, gmailError{Error: gmailErrorBody{
		Code:    code,
		Message: msg,
		Status:  strings.ReplaceAll(strings.ToUpper(http.StatusText(code)), " ", "_"),
	}})
}
