package service

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/event-assistant/internal/model"
	"github.com/capitalize-ai/event-assistant/internal/ratelimit"
	"github.com/capitalize-ai/event-assistant/internal/security"
)

const timeLayout = "15:04 02/01/2006"

const (
	replyHelp             = "Mình có thể giúp bạn tạo, sửa, xoá sự kiện, đặt lời nhắc hoặc mua vé. Bạn cần gì?"
	replyModelUnavailable = "Trợ lý tạm thời không phản hồi được. Bạn vui lòng thử lại sau ít phút."
	replyConfirmPrompt    = "Bạn có muốn tiếp tục không? (có/không)"
	replySkipped          = "Chưa thực hiện vì thao tác trước đó chưa hoàn tất."
	replyWithheld         = "Xin lỗi, mình không thể hiển thị câu trả lời này."
	replyUnsupported      = "Mình chưa hỗ trợ thao tác này."
	replyInvalidTime      = "Mình không hiểu thời gian bạn đưa ra. Bạn vui lòng ghi rõ ngày và giờ."
	replyInvalidWindow    = "Thời gian bắt đầu phải trước thời gian kết thúc."
	replyEventNotFound    = "Mình không tìm thấy sự kiện bạn nhắc đến."
	replyNotOwner         = "Bạn chỉ có thể thay đổi sự kiện do chính bạn tạo."
	replyUpstream         = "Hệ thống đang bận. Bạn vui lòng thử lại sau."
)

var fieldLabels = map[string]string{
	model.FieldEvent:        "sự kiện",
	model.FieldTicketType:   "loại vé",
	model.FieldName:         "họ tên",
	model.FieldEmail:        "email",
	"title":                 "tiêu đề",
	"description":           "mô tả",
	"event_type":            "loại sự kiện",
	"place":                 "địa điểm",
	"note":                  "ghi chú",
	"remind_before_minutes": "thời gian nhắc trước",
}

func label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

func missingFieldText(what string) string {
	return "Bạn vui lòng cho mình biết " + what + " của sự kiện."
}

func invalidFieldText(field string) string {
	return "Giá trị " + label(field) + " không hợp lệ."
}

func incompleteText(missing []string) string {
	labels := make([]string, len(missing))
	for i, m := range missing {
		labels[i] = label(m)
	}
	return "Đơn hàng còn thiếu: " + strings.Join(labels, ", ") + ". Đơn đã được huỷ, bạn vui lòng đặt lại."
}

func venueNotFoundText(name string) string {
	return fmt.Sprintf("Không tìm thấy địa điểm %q. Bạn kiểm tra lại tên địa điểm nhé.", name)
}

func conflictText(conflicts []model.Event) string {
	var b strings.Builder
	b.WriteString("Trùng lịch với:")
	for _, e := range conflicts {
		fmt.Fprintf(&b, "\n- %s (%s - %s)", e.Title, e.StartTime.Format(timeLayout), e.EndTime.Format("15:04"))
	}
	return b.String()
}

// commitFailedText carries the collaborator's failure message to the user.
func commitFailedText(err error) string {
	return fmt.Sprintf("Không thể lưu thay đổi: %v. Bạn vui lòng thử lại.", err)
}

func createdText(e *model.Event) string {
	return fmt.Sprintf("Đã tạo sự kiện %q tại %s, %s - %s.",
		e.Title, e.PlaceName, e.StartTime.Format(timeLayout), e.EndTime.Format(timeLayout))
}

func updatedText(e *model.Event) string {
	return fmt.Sprintf("Đã cập nhật sự kiện %q: %s - %s.",
		e.Title, e.StartTime.Format(timeLayout), e.EndTime.Format(timeLayout))
}

func deletedText(e *model.Event) string {
	return fmt.Sprintf("Đã xoá sự kiện %q.", e.Title)
}

func reminderText(e *model.Event, r *model.Reminder) string {
	return fmt.Sprintf("Đã đặt lời nhắc cho %q lúc %s.", e.Title, r.RemindAt.Format(timeLayout))
}

func eventStartedText(e *model.Event) string {
	return fmt.Sprintf("Sự kiện %q đã bắt đầu, không thể đặt lời nhắc.", e.Title)
}

func discardedText(pe *model.PendingEvent) string {
	return fmt.Sprintf("Đã huỷ, sự kiện %q không được lưu.", pe.Event.Title)
}

func skippedText(n int) string {
	return fmt.Sprintf("%d thao tác còn lại chưa được thực hiện. Bạn vui lòng gửi lại sau.", n)
}

func rateLimitedText(feature ratelimit.Feature) string {
	return fmt.Sprintf("Bạn đã dùng hết lượt cho tính năng %s. Vui lòng thử lại sau.", feature)
}

func rejectedText(code string) string {
	switch code {
	case string(security.ReasonEmpty):
		return "Tin nhắn không được để trống."
	case string(security.ReasonTooLong):
		return "Tin nhắn quá dài."
	default:
		return "Nội dung không hợp lệ."
	}
}
