package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroll/internal/response"
	"classroll/internal/totem"
)

type createTotemRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=60"`
	Location string `json:"location" binding:"required,min=2,max=120"`
	RoomID   string `json:"room_id" binding:"required,uuid"`
}

// CreateTotem registers a totem; the response is the only place its API
// key is ever shown.
func (h *Handler) CreateTotem(c *gin.Context) {
	var req createTotemRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	t, err := h.totems.Create(ctx, totem.CreateInput{Name: req.Name, Location: req.Location, RoomID: req.RoomID})
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTotems(c *gin.Context) {
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	items, err := h.totems.List(ctx)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) GetTotem(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	t, err := h.totems.Get(ctx, uri.ID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) RegenerateTotemKey(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	t, err := h.totems.RegenerateKey(ctx, uri.ID)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type totemStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) SetTotemStatus(c *gin.Context) {
	var uri idURI
	if !bindURI(c, &uri) {
		return
	}
	var req totemStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx, cancel := h.requestCtx(c)
	defer cancel()

	t, err := h.totems.SetActive(ctx, uri.ID, *req.Active)
	if err != nil {
		response.Abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
