package models

// AccessReason explains why an entitlement decision was granted or denied
type AccessReason string

const (
	// Granted reasons
	ReasonPrivileged   AccessReason = "PRIVILEGED"
	ReasonFullCourse   AccessReason = "FULL_COURSE"
	ReasonSingleLesson AccessReason = "SINGLE_LESSON"
	ReasonFreePreview  AccessReason = "FREE_PREVIEW"

	// Denied reasons
	ReasonNotFound         AccessReason = "NOT_FOUND"
	ReasonPurchaseRequired AccessReason = "PURCHASE_REQUIRED"
)

// Decision is the outcome of an entitlement check for one user and one lesson
// or attachment
type Decision struct {
	Granted bool         `json:"granted"`
	Reason  AccessReason `json:"reason"`
}

// Grant builds a granted decision with the given reason
func Grant(reason AccessReason) Decision {
	return Decision{Granted: true, Reason: reason}
}

// Deny builds a denied decision with the given reason
func Deny(reason AccessReason) Decision {
	return Decision{Granted: false, Reason: reason}
}
