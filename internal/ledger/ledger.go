// Package ledger 是设备订单台账的显式存储对象：
// 三张逻辑表——设备身份、pending 意向、confirmed 订单——全部按
// device_id / intent_id 查询，注入到各组件而不是用包级全局。
package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"order_recon/internal/model"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate 建台账相关的全部表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Device{},
		&model.PendingOrder{},
		&model.ConfirmedOrder{},
		&model.FulfilmentTask{},
		&model.ServiceItem{},
	)
}

// IssueDevice 生成并登记一个新设备身份。
// 格式 dev_<32hex>_<ts36> 与网关注解里的 device_id 对齐，身份找回按它匹配。
func (s *Store) IssueDevice() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := "dev_" + hex.EncodeToString(buf) + "_" + strconv.FormatInt(time.Now().UnixMilli(), 36)

	d := &model.Device{DeviceID: id, LastSeen: time.Now()}
	if err := s.db.Create(d).Error; err != nil {
		return "", err
	}
	return id, nil
}

// TouchDevice 登记（或刷新）一个设备身份。首次见到的设备直接补录，
// 因为历史客户端的身份是在浏览器侧生成的。
func (s *Store) TouchDevice(deviceID string) error {
	if deviceID == "" {
		return nil
	}
	err := s.db.Create(&model.Device{DeviceID: deviceID, LastSeen: time.Now()}).Error
	if err == nil {
		return nil
	}
	if errorsLikeUnique(err) {
		return s.db.Model(&model.Device{}).
			Where("device_id = ?", deviceID).
			Update("last_seen", time.Now()).Error
	}
	return err
}

// PutPending 记录一条未确认意向。intent_id 冲突视为重复提交，直接成功。
func (s *Store) PutPending(p *model.PendingOrder) error {
	err := s.db.Create(p).Error
	if err != nil && errorsLikeUnique(err) {
		return nil
	}
	return err
}

// GetPending 按 intent_id 查 pending。found=false 表示不存在。
func (s *Store) GetPending(intentID string) (model.PendingOrder, bool, error) {
	var p model.PendingOrder
	err := s.db.Where("intent_id = ?", intentID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.PendingOrder{}, false, nil
		}
		return model.PendingOrder{}, false, err
	}
	return p, true, nil
}

// ListPending 返回某设备创建时间不早于 cutoff 的 pending 意向。
// 过期的（早于 cutoff）不出现在台账视图里，由 GC 静默回收。
func (s *Store) ListPending(deviceID string, cutoff time.Time) ([]model.PendingOrder, error) {
	var list []model.PendingOrder
	err := s.db.Where("device_id = ? AND created_at >= ?", deviceID, cutoff).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// ListAllPending 返回全部未过期 pending，轮询器用。
func (s *Store) ListAllPending(cutoff time.Time) ([]model.PendingOrder, error) {
	var list []model.PendingOrder
	err := s.db.Where("created_at >= ?", cutoff).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// DeletePending 按 intent_id 删除 pending 记录。不存在时不报错。
func (s *Store) DeletePending(intentID string) error {
	return s.db.Where("intent_id = ?", intentID).Delete(&model.PendingOrder{}).Error
}

// GCExpiredPending 清理早于 cutoff 的 pending，返回清理条数。
// 只删 pending，不产生 confirmed——从未 captured 的意向就此消失。
func (s *Store) GCExpiredPending(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&model.PendingOrder{})
	return res.RowsAffected, res.Error
}

// InsertConfirmedIfAbsent 是全部确认通道共用的唯一提交点（claim）。
// intent_id 唯一索引下的 insert-if-absent：
// - 首次插入返回 true，并删除同 intent 的 pending；
// - UNIQUE 冲突说明别的通道已经确认过，返回 false，不报错。
// 并发通道（回调 / 关闭检查 / 轮询 / 前台刷新 / 找回）同时提交时，
// 数据库唯一索引保证恰好一条 ConfirmedOrder。
func (s *Store) InsertConfirmedIfAbsent(o *model.ConfirmedOrder) (bool, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		return tx.Where("intent_id = ?", o.IntentID).Delete(&model.PendingOrder{}).Error
	})
	if err != nil {
		if errorsLikeUnique(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HasConfirmed 查某意向是否已确认。
func (s *Store) HasConfirmed(intentID string) (bool, error) {
	var count int64
	err := s.db.Model(&model.ConfirmedOrder{}).
		Where("intent_id = ?", intentID).
		Count(&count).Error
	return count > 0, err
}

// GetConfirmed 按 intent_id 查确认订单。
func (s *Store) GetConfirmed(intentID string) (model.ConfirmedOrder, bool, error) {
	var o model.ConfirmedOrder
	err := s.db.Where("intent_id = ?", intentID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ConfirmedOrder{}, false, nil
		}
		return model.ConfirmedOrder{}, false, err
	}
	return o, true, nil
}

// ListConfirmed 返回某设备的全部确认订单，新单在前。
func (s *Store) ListConfirmed(deviceID string) ([]model.ConfirmedOrder, error) {
	var list []model.ConfirmedOrder
	err := s.db.Where("device_id = ?", deviceID).
		Order("confirmed_at DESC").
		Find(&list).Error
	return list, err
}

// InsertFulfilmentIfAbsent 履约任务的 insert-if-absent，消费者在
// at-least-once 投递下靠它去重。
func (s *Store) InsertFulfilmentIfAbsent(t *model.FulfilmentTask) (bool, error) {
	err := s.db.Create(t).Error
	if err != nil {
		if errorsLikeUnique(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// errorsLikeUnique 识别 sqlite/通用驱动的唯一约束冲突。
func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
