package dtos

type MediaDTO struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type" binding:"required"`
	Caption  string `json:"caption"`
}

type SendMessageDTO struct {
	Target  string     `json:"target" binding:"required"`
	Message string     `json:"message"`
	Media   []MediaDTO `json:"media"`
}

type ContactDTO struct {
	Phone  string            `json:"phone" binding:"required"`
	Fields map[string]string `json:"fields"`
}

type SendBulkDTO struct {
	Contacts         []ContactDTO `json:"contacts" binding:"required,min=1"`
	Template         string       `json:"template" binding:"required"`
	Media            []MediaDTO   `json:"media"`
	MaxDelaySeconds  int          `json:"max_delay_seconds"`
	BatchSize        int          `json:"batch_size" binding:"required,min=1"`
	BatchWaitMinutes int          `json:"batch_wait_minutes"`
}

type MessageLogDTO struct {
	Target string `json:"target"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	SentAt string `json:"sent_at"`
}
