package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/wwsz-2002/comment-app/internal/cache"
	"github.com/wwsz-2002/comment-app/internal/config"
	"github.com/wwsz-2002/comment-app/internal/middleware"
	"github.com/wwsz-2002/comment-app/internal/model"
	"github.com/wwsz-2002/comment-app/internal/seckill"
	"github.com/wwsz-2002/comment-app/internal/session"
	rediskey "github.com/wwsz-2002/comment-app/pkg/redis"
)

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, cacheClient *cache.Client,
	svc *seckill.Service, resolver *session.Resolver, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Shop：读路径走旁路缓存
	r.GET("/api/shop/:id", getShop(db, cacheClient, cfg.ShopCacheTTL))
	r.GET("/api/shop/hot/:id", getHotShop(db, cacheClient, cfg.HotShopLogicalTTL))
	r.POST("/api/shop", createShop(db))
	r.PUT("/api/shop", updateShop(db, cacheClient))
	r.POST("/api/shop/warmup/:id", warmupShop(db, cacheClient, cfg.AdminToken, cfg.HotShopLogicalTTL))

	// Voucher & seckill
	r.POST("/api/voucher", createVoucher(svc))
	r.GET("/api/voucher/:id", getVoucher(svc))

	auth := middleware.Auth(resolver)
	limit := middleware.RedisRateLimit(rdb, cfg.SeckillRateLimit, cfg.SeckillRateWindow)
	r.POST("/api/voucher/seckill/:voucher_id", auth, limit, doSeckill(svc))
	r.GET("/api/voucher/order/:order_id", auth, getOrderStatus(svc))
}

// shopLoader 旁路缓存的回源函数：按 id 查店铺，不存在返回 nil。
func shopLoader(db *gorm.DB) func(ctx context.Context, id string) (*model.Shop, error) {
	return func(ctx context.Context, id string) (*model.Shop, error) {
		var s model.Shop
		err := db.WithContext(ctx).First(&s, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &s, nil
	}
}

// getShop 普通店铺查询：穿透策略，空值占位防穿透。
func getShop(db *gorm.DB, cacheClient *cache.Client, ttl time.Duration) gin.HandlerFunc {
	loader := shopLoader(db)
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "店铺ID无效"})
			return
		}
		s, err := cache.Get(c.Request.Context(), cacheClient, rediskey.ShopKeyPrefix, id, ttl, loader)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "店铺不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": s})
	}
}

// getHotShop 热点店铺查询：逻辑过期策略，条目需先 warmup 预热。
func getHotShop(db *gorm.DB, cacheClient *cache.Client, logicalTTL time.Duration) gin.HandlerFunc {
	loader := shopLoader(db)
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "店铺ID无效"})
			return
		}
		s, err := cache.GetWithLogicalExpiry(c.Request.Context(), cacheClient,
			rediskey.HotShopKeyPrefix, rediskey.ShopLockPrefix, id, logicalTTL, loader)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "店铺未预热或不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": s})
	}
}

// createShop 新建店铺。
func createShop(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			Address  string `json:"address"`
			AvgPrice int64  `json:"avg_price" binding:"omitempty,min=0"`
			Score    int    `json:"score" binding:"omitempty,min=0,max=50"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		s := &model.Shop{
			Name:     req.Name,
			Address:  req.Address,
			AvgPrice: req.AvgPrice,
			Score:    req.Score,
		}
		if err := db.Create(s).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": s})
	}
}

// updateShop 先更新数据库，再删缓存，下次读自然回填。
func updateShop(db *gorm.DB, cacheClient *cache.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.Shop
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if req.ID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "店铺ID必填"})
			return
		}
		if err := db.Model(&model.Shop{}).Where("id = ?", req.ID).Updates(&req).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		key := rediskey.ShopKey(req.ID)
		if err := cacheClient.Delete(c.Request.Context(), key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "更新成功"})
	}
}

// warmupShop 热点店铺预热：把 DB 数据按逻辑过期信封写入 Redis。
// 逻辑过期策略不回源，未预热的键会直接按不存在处理，所以大促前必须预热。
func warmupShop(db *gorm.DB, cacheClient *cache.Client, adminToken string, logicalTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}

		idStr := c.Param("id")
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "店铺ID无效"})
			return
		}
		var s model.Shop
		if err := db.First(&s, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "店铺不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		key := rediskey.HotShopKeyPrefix + idStr
		if err := cacheClient.SetWithLogicalExpiry(c.Request.Context(), key, &s, logicalTTL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "预热成功"})
	}
}

// createVoucher 创建秒杀券（含时间窗校验），落库同时预热 Redis 库存。
func createVoucher(svc *seckill.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title     string `json:"title" binding:"required"`
			PayValue  int64  `json:"pay_value" binding:"required,min=1"`
			Stock     int64  `json:"stock" binding:"required,min=1"`
			BeginTime string `json:"begin_time" binding:"required"`
			EndTime   string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		begin, err := time.Parse(time.RFC3339, req.BeginTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "begin_time 格式错误，请用 RFC3339"})
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 格式错误，请用 RFC3339"})
			return
		}
		if !end.After(begin) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 必须晚于 begin_time"})
			return
		}
		v := &model.SeckillVoucher{
			Title:     req.Title,
			PayValue:  req.PayValue,
			Stock:     req.Stock,
			BeginTime: begin,
			EndTime:   end,
		}
		if err := svc.CreateVoucher(c.Request.Context(), v); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

// getVoucher 查询秒杀券信息。
func getVoucher(svc *seckill.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "券ID无效"})
			return
		}
		v, err := svc.GetVoucher(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, seckill.ErrVoucherNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "券不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

// doSeckill 秒杀下单入口：同步返回订单号，落单是异步的。
func doSeckill(svc *seckill.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		voucherID, err := strconv.ParseUint(c.Param("voucher_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "券ID无效"})
			return
		}
		u := middleware.CurrentUser(c)

		orderID, err := svc.Seckill(c.Request.Context(), voucherID, u.ID)
		if err != nil {
			switch {
			case errors.Is(err, seckill.ErrVoucherNotFound):
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "券不存在"})
			case errors.Is(err, seckill.ErrNotStarted):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀尚未开始"})
			case errors.Is(err, seckill.ErrEnded):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀已经结束"})
			case errors.Is(err, seckill.ErrSoldOut):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "库存不足"})
			case errors.Is(err, seckill.ErrDuplicateOrder):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "不能重复下单"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			}
			return
		}

		// 这里直接返回订单号，但订单行是异步写入的，结果另查
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{
				"order_id": strconv.FormatInt(orderID, 10),
				"status":   "pending",
			},
		})
	}
}

// getOrderStatus 查询订单异步落库结果。
func getOrderStatus(svc *seckill.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "订单ID无效"})
			return
		}
		order, found, err := svc.OrderStatus(c.Request.Context(), orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if !found {
			// 快路径已返回订单号但消费者还没落库
			c.JSON(http.StatusOK, gin.H{
				"code": 0,
				"data": gin.H{"status": "pending"},
			})
			return
		}
		u := middleware.CurrentUser(c)
		if order.UserID != u.ID {
			c.JSON(http.StatusForbidden, gin.H{"code": 403, "msg": "无权查看该订单"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{
				"status": "created",
				"order":  order,
			},
		})
	}
}
