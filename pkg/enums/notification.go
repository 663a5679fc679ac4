package enums

// NotificationType categorizes member-facing notifications.
type NotificationType string

const (
	NotificationTypeBorrowReceipt NotificationType = "borrow_receipt"
	NotificationTypeReturnReceipt NotificationType = "return_receipt"
	NotificationTypeCopyAvailable NotificationType = "copy_available"
	NotificationTypeOverdue       NotificationType = "overdue"
	NotificationTypeReservation   NotificationType = "reservation"
)

// IsValid reports whether the value is a known notification type.
func (n NotificationType) IsValid() bool {
	switch n {
	case NotificationTypeBorrowReceipt,
		NotificationTypeReturnReceipt,
		NotificationTypeCopyAvailable,
		NotificationTypeOverdue,
		NotificationTypeReservation:
		return true
	}
	return false
}
