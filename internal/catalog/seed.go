package catalog

import (
	"order_recon/internal/model"

	"gorm.io/gorm"
)

// Seed 在目录为空时写入内置价目表。已有数据时不动，避免覆盖线上改价。
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.ServiceItem{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(defaultItems()).Error
}

// defaultItems 是内置价目表，单价为每 1000 个量的 paise 数。
func defaultItems() []model.ServiceItem {
	return []model.ServiceItem{
		{
			Platform:  "YouTube",
			Category:  "YouTube Views",
			Name:      "[Max-10M Speed-Any Quantity Delivered Within 12H-48H] [Lifetime Non Drop] [Recommended] Start: 3-4 hrs) [Minimum - 500]",
			UnitPaise: 25000,
			MinOrder:  500,
		},
		{
			Platform:  "YouTube",
			Category:  "Youtube Shorts",
			Name:      "YouTube Shorts Views [Non Drop] [Speed - 10K Day] [Start-3-5H]",
			UnitPaise: 19900,
		},
		{
			Platform:  "YouTube",
			Category:  "Youtube Shorts",
			Name:      "Youtube Short Likes - Speed:- 100K/Day - Refill:- 30 Days (Start Time:-0-1 Hour)",
			UnitPaise: 19900,
		},
		{
			Platform:  "YouTube",
			Category:  "YouTube Likes",
			Name:      "YouTube Likes - Speed:- 150K/Day -Refill:- 30Days {Start:- 0-1hrs}",
			UnitPaise: 9900,
		},
		{
			Platform:  "YouTube",
			Category:  "YouTube Likes",
			Name:      "Youtube Likes [Lifetime Guaranteed] [Max: 100K] [Start Time: 1 Hour] [Speed: 50K/Day]",
			UnitPaise: 15000,
		},
		{
			Platform:  "YouTube",
			Category:  "YouTube Live Stream",
			Name:      "YouTube Livestream Viewers - [15Minutes 100% Concurrent] [Cheapest] Instant",
			UnitPaise: 5000,
		},
		{
			Platform:  "Instagram",
			Category:  "Instagram Followers",
			Name:      "Instagram Followers [Old Accounts With Posts] [Refill: 30 Days] [Speed: 50K/Day]",
			UnitPaise: 18000,
		},
		{
			Platform:  "Instagram",
			Category:  "Instagram Likes",
			Name:      "Instagram Likes [Real] [Refill: 30 Days] [Speed: 20K/Day]",
			UnitPaise: 6000,
		},
		{
			Platform:  "Telegram",
			Category:  "Telegram Members",
			Name:      "Telegram Channel Members [Non Drop] [Speed: 30K/Day]",
			UnitPaise: 30000,
		},
		{
			Platform:  "Telegram",
			Category:  "Telegram Views",
			Name:      "Telegram Post Views [Last 1 Post] [Instant]",
			UnitPaise: 1500,
		},
	}
}
