package intent

// Category is a coarse classification of a user message.
type Category string

const (
	CategoryCreateEvent Category = "create_event"
	CategoryUpdateEvent Category = "update_event"
	CategoryDeleteEvent Category = "delete_event"
	CategoryAddReminder Category = "add_reminder"
	CategoryOrderTicket Category = "order_ticket"
	CategoryConfirm     Category = "confirm"
	CategoryCancel      Category = "cancel"
	CategorySmalltalk   Category = "smalltalk"
	CategoryUnknown     Category = "unknown"
)

// Mutating reports whether the category asks for a change to stored data.
func (c Category) Mutating() bool {
	switch c {
	case CategoryCreateEvent, CategoryUpdateEvent, CategoryDeleteEvent, CategoryAddReminder, CategoryOrderTicket:
		return true
	}
	return false
}

// keywordOrder breaks ties between equally scored keyword matches.
var keywordOrder = []Category{
	CategoryDeleteEvent,
	CategoryUpdateEvent,
	CategoryAddReminder,
	CategoryOrderTicket,
	CategoryCreateEvent,
	CategoryConfirm,
	CategoryCancel,
	CategorySmalltalk,
}

// DefaultReferences are the phrases embedded as intent anchors.
func DefaultReferences() map[Category][]string {
	return map[Category][]string{
		CategoryCreateEvent: {
			"tạo sự kiện mới",
			"lên lịch một buổi hội thảo",
			"create a new event",
			"schedule a workshop next week",
		},
		CategoryUpdateEvent: {
			"đổi giờ sự kiện",
			"cập nhật địa điểm sự kiện",
			"reschedule my event",
			"change the event time",
		},
		CategoryDeleteEvent: {
			"xóa sự kiện",
			"hủy sự kiện của tôi",
			"delete my event",
			"remove the event from my calendar",
		},
		CategoryAddReminder: {
			"nhắc tôi trước sự kiện",
			"đặt lời nhắc",
			"remind me before the event",
		},
		CategoryOrderTicket: {
			"mua vé sự kiện",
			"đặt hai vé",
			"buy tickets for the concert",
			"book a ticket",
		},
		CategorySmalltalk: {
			"xin chào",
			"cảm ơn bạn",
			"hello there",
			"thank you",
		},
	}
}

// DefaultKeywords are matched when the vector path is unavailable or not
// confident. Longer phrases outweigh shorter ones. Matching is diacritic
// folded, so single syllables that collide with common words are avoided.
func DefaultKeywords() map[Category][]string {
	return map[Category][]string{
		CategoryCreateEvent: {"tạo sự kiện", "tạo lịch", "thêm sự kiện", "lên lịch", "tổ chức", "create", "schedule", "add event", "new event", "organize"},
		CategoryUpdateEvent: {"sửa", "cập nhật", "đổi giờ", "thay đổi", "dời lịch", "update", "change", "reschedule", "move", "edit"},
		CategoryDeleteEvent: {"xóa", "hủy sự kiện", "delete", "remove", "cancel event"},
		CategoryAddReminder: {"nhắc", "nhắc nhở", "lời nhắc", "remind", "reminder"},
		CategoryOrderTicket: {"mua vé", "đặt vé", "buy ticket", "buy tickets", "ticket", "tickets", "book"},
		CategoryConfirm:     {"có", "đồng ý", "xác nhận", "ok", "yes", "confirm"},
		CategoryCancel:      {"hủy", "thôi", "không", "cancel", "stop", "no"},
		CategorySmalltalk:   {"xin chào", "chào", "hello", "hi", "cảm ơn", "thanks", "thank you"},
	}
}

// DefaultOutdoorKeywords flag activities exposed to weather.
func DefaultOutdoorKeywords() []string {
	return []string{
		"ngoài trời", "lễ hội", "dã ngoại", "cắm trại", "picnic", "leo núi",
		"chạy bộ", "marathon", "bãi biển", "công viên", "sân vận động",
		"sân thượng", "hội chợ", "vườn", "outdoor", "open air", "open-air",
		"festival", "camping", "hiking", "beach", "park", "stadium", "rooftop",
		"garden", "fair", "barbecue", "bbq",
	}
}
