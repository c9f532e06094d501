package dtos

import "time"

type ScheduleMessageDTO struct {
	Target  string     `json:"target" binding:"required"`
	Message string     `json:"message"`
	Media   []MediaDTO `json:"media"`
	FireAt  time.Time  `json:"fire_at" binding:"required"`
}

type ScheduleBulkDTO struct {
	SendBulkDTO
	FireAt   time.Time `json:"fire_at"`
	CronSpec string    `json:"cron_spec"`
}

type ScheduleGroupDTO struct {
	Groups  []string   `json:"groups" binding:"required,min=1"`
	Message string     `json:"message"`
	Media   []MediaDTO `json:"media"`
	FireAt  time.Time  `json:"fire_at" binding:"required"`
}

type RescheduleDTO struct {
	FireAt time.Time `json:"fire_at" binding:"required"`
}
