package notifications

import (
	"fmt"
	"time"

	"reportnotify/internal/types"
)

const deadlineLayout = "02/01/2006 15:04"

// RenderDeadlineMessage builds the reminder text for req as of now. The
// deadline is shown in loc; the remaining time is whole days when at least
// one day is left, else whole hours, else whole minutes.
func RenderDeadlineMessage(req *types.ReportRequest, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf(
		"🔔 Thông báo sắp đến hạn báo cáo\n\n"+
			"📋 Tiêu đề: %s\n"+
			"⏰ Hạn nộp: %s\n"+
			"⏳ Còn lại: %s\n\n"+
			"Vui lòng hoàn thành và nộp báo cáo trước thời hạn.",
		req.Title,
		req.Deadline.In(loc).Format(deadlineLayout),
		formatRemaining(req.Deadline.Sub(now)),
	)
}

func formatRemaining(d time.Duration) string {
	days := int64(d / (24 * time.Hour))
	hours := int64(d / time.Hour)
	switch {
	case days > 0:
		return fmt.Sprintf("%d ngày", days)
	case hours > 0:
		return fmt.Sprintf("%d giờ", hours)
	default:
		return fmt.Sprintf("%d phút", int64(d/time.Minute))
	}
}
