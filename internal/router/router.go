package router

import (
	"errors"
	"net/http"
	"time"

	"order_recon/internal/catalog"
	"order_recon/internal/config"
	"order_recon/internal/confirm"
	"order_recon/internal/gateway"
	"order_recon/internal/intent"
	"order_recon/internal/ledger"
	"order_recon/internal/middleware"
	"order_recon/internal/recovery"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// 网关 webhook 的签名头。
const headerWebhookSignature = "X-Gateway-Signature"

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, store *ledger.Store, cat *catalog.Catalog, mgr *intent.Manager,
	eng *confirm.Engine, rec *recovery.Recoverer, rdb *rd.Client, cfg config.AppConfig,
	log *logrus.Logger) {

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	r.POST("/api/device", issueDevice(store))
	r.GET("/api/catalog", listCatalog(cat))

	// Checkout 生命周期
	r.POST("/api/checkout/intent",
		middleware.RedisRateLimit(rdb, "intent", cfg.IntentRateLimit, cfg.IntentRateWindow),
		createIntent(mgr, log))
	r.POST("/api/checkout/verify", verifyPayment(eng, log))
	r.POST("/api/checkout/intent/:intent_id/check", checkIntent(eng))
	r.POST("/api/checkout/refresh", refreshDevice(eng))

	// 台账与找回
	r.GET("/api/orders", listOrders(store, cfg))
	r.POST("/api/orders/recover",
		middleware.RedisRateLimit(rdb, "recover", cfg.RecoverRateLimit, cfg.RecoverRateWindow),
		recoverOrders(rec))

	// 网关异步推送
	r.POST("/api/webhook/gateway", gatewayWebhook(eng))
}

// issueDevice 签发并登记设备身份。
func issueDevice(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := store.IssueDevice()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"device_id": id}})
	}
}

// listCatalog 返回服务目录（下单表单的数据源）。
func listCatalog(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := cat.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": items})
	}
}

// createIntent 创建支付意向。金额服务端重算，客户端总价只作回显。
func createIntent(mgr *intent.Manager, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DeviceID   string `json:"device_id" binding:"required"`
			Platform   string `json:"platform" binding:"required"`
			Category   string `json:"category" binding:"required"`
			Service    string `json:"service" binding:"required"`
			Link       string `json:"link" binding:"required"`
			Quantity   int64  `json:"quantity" binding:"required,min=1"`
			Email      string `json:"email" binding:"required,email"`
			Contact    string `json:"contact" binding:"required"`
			TotalPaise int64  `json:"total_paise"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		sel := intent.Selection{
			Platform: req.Platform,
			Category: req.Category,
			Service:  req.Service,
			Link:     req.Link,
			Quantity: req.Quantity,
		}
		contact := intent.Contact{Email: req.Email, Contact: req.Contact}

		res, err := mgr.CreateIntent(c.Request.Context(), sel, contact, req.DeviceID, req.TotalPaise)
		if err != nil {
			switch {
			case errors.Is(err, intent.ErrInvalidAmount):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			case errors.Is(err, catalog.ErrServiceNotFound):
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "service not found"})
			case errors.Is(err, gateway.ErrNotConfigured), errors.Is(err, gateway.ErrUnavailable):
				log.WithError(err).Error("create intent: gateway unavailable")
				c.JSON(http.StatusBadGateway, gin.H{"code": 502, "msg": "payment gateway unavailable, please try again"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": res})
	}
}

// verifyPayment 同步回调通道。验签失败是安全事件：不可重试，
// 给用户带支持引用号的明确失败。
func verifyPayment(eng *confirm.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			IntentID  string `json:"intent_id" binding:"required"`
			PaymentID string `json:"payment_id" binding:"required"`
			Signature string `json:"signature" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		order, err := eng.VerifyCallback(c.Request.Context(), req.IntentID, req.PaymentID, req.Signature)
		if err != nil {
			if confirm.IsSignatureInvalid(err) {
				ref := uuid.New().String()
				log.WithFields(logrus.Fields{
					"intent_id":   req.IntentID,
					"support_ref": ref,
				}).Warn("signature verification rejected")
				c.JSON(http.StatusBadRequest, gin.H{
					"code": 400,
					"msg":  "invalid payment signature, contact support with reference " + ref,
				})
				return
			}
			if errors.Is(err, gateway.ErrNotConfigured) {
				c.JSON(http.StatusBadGateway, gin.H{"code": 502, "msg": "payment gateway not configured"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": order})
	}
}

// checkIntent 关闭检查通道。网关查询失败不算失败——
// 对用户永远是“支付核实中”，轮询会继续兜底。
func checkIntent(eng *confirm.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		intentID := c.Param("intent_id")
		if intentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "intent_id is required"})
			return
		}

		res, err := eng.CheckIntent(c.Request.Context(), intentID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
				"captured":  false,
				"verifying": true,
			}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": res})
	}
}

// refreshDevice 前台刷新通道：页面回到前台时调用，把设备全部
// 仍在途的意向各查一次。
func refreshDevice(eng *confirm.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		confirmed, err := eng.RefreshDevice(c.Request.Context(), req.DeviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"confirmed": confirmed,
			"count":     len(confirmed),
		}})
	}
}

// listOrders 台账视图：确认订单 + 未过期 pending。
func listOrders(store *ledger.Store, cfg config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := c.Query("device_id")
		if deviceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "device_id is required"})
			return
		}

		confirmed, err := store.ListConfirmed(deviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		pending, err := store.ListPending(deviceID, time.Now().Add(-cfg.PendingTTL))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"confirmed": confirmed,
			"pending":   pending,
		}})
	}
}

// recoverOrders 按身份找回。空结果不是错误。
func recoverOrders(rec *recovery.Recoverer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id"`
			Email    string `json:"email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		orders, err := rec.Recover(c.Request.Context(), req.DeviceID, req.Email)
		if err != nil {
			if errors.Is(err, recovery.ErrNoIdentity) {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "provide device_id or email"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"orders": orders,
			"count":  len(orders),
		}})
	}
}

// gatewayWebhook 网关异步推送入口。验签在解析 body 之前，
// 通知在响应写出之前完成（不开 goroutine）。
func gatewayWebhook(eng *confirm.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "read body failed"})
			return
		}
		sig := c.GetHeader(headerWebhookSignature)

		if err := eng.HandleWebhook(c.Request.Context(), raw, sig); err != nil {
			if confirm.IsSignatureInvalid(err) {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid signature"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "webhook processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ok"})
	}
}
