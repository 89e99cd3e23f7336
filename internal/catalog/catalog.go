package catalog

import (
	"errors"
	"fmt"

	"order_recon/internal/model"

	"gorm.io/gorm"
)

// ErrServiceNotFound 表示所选平台/分类/服务在目录中不存在。
var ErrServiceNotFound = errors.New("service not found in catalog")

// ErrBelowMinOrder 表示数量低于该服务的最低下单量。
var ErrBelowMinOrder = errors.New("quantity below service min order")

// Catalog 提供服务目录查询与服务端权威计价。
type Catalog struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Lookup 按平台+分类+名称精确查找服务条目。
func (c *Catalog) Lookup(platform, category, name string) (model.ServiceItem, error) {
	var item model.ServiceItem
	err := c.db.Where("platform = ? AND category = ? AND name = ?", platform, category, name).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ServiceItem{}, ErrServiceNotFound
		}
		return model.ServiceItem{}, err
	}
	return item, nil
}

// Quote 计算数量对应的应付金额（最小货币单位）。
// 单价按每 1000 个量计，向上取整，保证不会因整除吃掉尾差。
func (c *Catalog) Quote(platform, category, name string, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be > 0")
	}
	item, err := c.Lookup(platform, category, name)
	if err != nil {
		return 0, err
	}
	if item.MinOrder > 0 && quantity < item.MinOrder {
		return 0, ErrBelowMinOrder
	}
	return ceilDiv(item.UnitPaise*quantity, 1000), nil
}

// List 返回全部目录条目（前端下单表单用）。
func (c *Catalog) List() ([]model.ServiceItem, error) {
	var items []model.ServiceItem
	if err := c.db.Order("platform, category, id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
