package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
)

// RouterOption configures the HTTP router.
type RouterOption func(*router)

// WithKnownTenants restricts the API to tenants for which known is true.
// Other tenant ids get 404.
func WithKnownTenants(known func(tenantID string) bool) RouterOption {
	return func(r *router) {
		r.known = known
	}
}

type router struct {
	svc   *Service
	known func(string) bool
}

// NewRouter builds the admin HTTP API:
//
//	GET    /healthz
//	GET    /tenants/:tenant/carts
//	GET    /tenants/:tenant/carts/:customer
//	POST   /tenants/:tenant/carts/:customer/items
//	PATCH  /tenants/:tenant/carts/:customer/items/:index
//	DELETE /tenants/:tenant/carts/:customer/items/:index
//	PUT    /tenants/:tenant/carts/:customer/state
//	POST   /tenants/:tenant/carts/:customer/reset
//	POST   /tenants/:tenant/carts/:customer/finalize
//	POST   /tenants/:tenant/carts/:customer/dispatch
//	GET    /tenants/:tenant/orders?status=
//	POST   /tenants/:tenant/orders/:order/dispatch
//	GET    /tenants/:tenant/bot
//	PUT    /tenants/:tenant/bot
func NewRouter(svc *Service, opts ...RouterOption) *gin.Engine {
	rt := &router{svc: svc, known: func(string) bool { return true }}
	for _, opt := range opts {
		opt(rt)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	t := r.Group("/tenants/:tenant", rt.tenantParam)
	t.GET("/carts", rt.listCarts)
	t.GET("/carts/:customer", rt.getCart)
	t.POST("/carts/:customer/items", rt.addItem)
	t.PATCH("/carts/:customer/items/:index", rt.adjustQuantity)
	t.DELETE("/carts/:customer/items/:index", rt.removeItem)
	t.PUT("/carts/:customer/state", rt.setState)
	t.POST("/carts/:customer/reset", rt.reset)
	t.POST("/carts/:customer/finalize", rt.finalize)
	t.POST("/carts/:customer/dispatch", rt.dispatch)
	t.GET("/orders", rt.listOrders)
	t.POST("/orders/:order/dispatch", rt.dispatchOrder)
	t.GET("/bot", rt.getBot)
	t.PUT("/bot", rt.setBot)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("admin request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (rt *router) tenantParam(c *gin.Context) {
	id := c.Param("tenant")
	if err := tenant.ValidateID(id); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !rt.known(id) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return
	}
	c.Next()
}

// GET /tenants/:tenant/carts
func (rt *router) listCarts(c *gin.Context) {
	carts, err := rt.svc.ListCarts(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"carts": carts})
}

// GET /tenants/:tenant/carts/:customer
func (rt *router) getCart(c *gin.Context) {
	snap, err := rt.svc.GetCart(c.Request.Context(), c.Param("tenant"), c.Param("customer"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /tenants/:tenant/carts/:customer/items
func (rt *router) addItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := rt.svc.AddItem(c.Request.Context(), c.Param("tenant"), c.Param("customer"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// PATCH /tenants/:tenant/carts/:customer/items/:index
func (rt *router) adjustQuantity(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var body struct {
		Delta int `json:"delta" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := rt.svc.AdjustQuantity(c.Request.Context(), c.Param("tenant"), c.Param("customer"), index, body.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// DELETE /tenants/:tenant/carts/:customer/items/:index
func (rt *router) removeItem(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	snap, err := rt.svc.RemoveItem(c.Request.Context(), c.Param("tenant"), c.Param("customer"), index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PUT /tenants/:tenant/carts/:customer/state
func (rt *router) setState(c *gin.Context) {
	var body struct {
		State string `json:"state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := rt.svc.SetState(c.Request.Context(), c.Param("tenant"), c.Param("customer"), session.State(body.State))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /tenants/:tenant/carts/:customer/reset
func (rt *router) reset(c *gin.Context) {
	snap, err := rt.svc.Reset(c.Request.Context(), c.Param("tenant"), c.Param("customer"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /tenants/:tenant/carts/:customer/finalize
func (rt *router) finalize(c *gin.Context) {
	rec, created, err := rt.svc.Finalize(c.Request.Context(), c.Param("tenant"), c.Param("customer"))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"order": rec, "created": created})
}

// POST /tenants/:tenant/carts/:customer/dispatch
func (rt *router) dispatch(c *gin.Context) {
	rec, err := rt.svc.Dispatch(c.Request.Context(), c.Param("tenant"), c.Param("customer"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": rec})
}

// GET /tenants/:tenant/orders?status=
func (rt *router) listOrders(c *gin.Context) {
	orders, err := rt.svc.ListOrders(c.Request.Context(), c.Param("tenant"), tenant.OrderStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []tenant.OrderRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// POST /tenants/:tenant/orders/:order/dispatch
func (rt *router) dispatchOrder(c *gin.Context) {
	rec, err := rt.svc.DispatchOrder(c.Request.Context(), c.Param("tenant"), c.Param("order"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": rec})
}

// GET /tenants/:tenant/bot
func (rt *router) getBot(c *gin.Context) {
	enabled, err := rt.svc.BotEnabled(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

// PUT /tenants/:tenant/bot
func (rt *router) setBot(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := rt.svc.SetBotEnabled(c.Request.Context(), c.Param("tenant"), *body.Enabled); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *body.Enabled})
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative integer"})
		return 0, false
	}
	return index, true
}

// writeError maps service errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrCartNotFound), errors.Is(err, tenant.ErrOrderNotFound), session.IsItemNotFound(err):
		status = http.StatusNotFound
	case session.IsInvalidInput(err), session.IsUnknownState(err):
		status = http.StatusBadRequest
	case session.IsPersistenceFailure(err), session.IsCollaboratorUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("admin request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
