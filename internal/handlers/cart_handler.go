package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-checkout-orderflow/internal/auth"
	"github.com/imrishuroy/go-checkout-orderflow/internal/cart"
	"github.com/imrishuroy/go-checkout-orderflow/internal/validation"
)

type cartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	CartID     int64           `json:"cart_id"`
	Items      []cartLine      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Warnings   []cart.Warning  `json:"warnings,omitempty"`
}

func toCartResponse(v *cart.View) cartResponse {
	out := cartResponse{CartID: v.CartID, Items: make([]cartLine, 0, len(v.Lines)), TotalPrice: v.Total}
	for _, l := range v.Lines {
		out.Items = append(out.Items, cartLine{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal,
		})
	}
	return out
}

func (h *handler) getCart(c *gin.Context) {
	v, err := h.cfg.Cart.Get(c.Request.Context(), auth.User(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(v))
}

func (h *handler) addCartItem(c *gin.Context) {
	var req validation.AddCartItemRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	v, err := h.cfg.Cart.AddItem(c.Request.Context(), auth.User(c).ID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(v))
}

func (h *handler) updateCartItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_product_id", "message": "product_id must be a positive integer"})
		return
	}
	var req validation.UpdateCartItemRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	v, err := h.cfg.Cart.UpdateItem(c.Request.Context(), auth.User(c).ID, productID, *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(v))
}

func (h *handler) mergeCart(c *gin.Context) {
	var req validation.MergeCartRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	lines := make([]cart.MergeLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, cart.MergeLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	v, warnings, err := h.cfg.Cart.Merge(c.Request.Context(), auth.User(c).ID, lines)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := toCartResponse(v)
	resp.Warnings = warnings
	c.JSON(http.StatusOK, resp)
}
