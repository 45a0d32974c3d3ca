package utils

// Server-side labels for chart buckets, statuses and access decisions.
// Everything else is translated by the frontend.

var translations = map[string]map[string]string{
	"en": {
		"health.ok": "ok",

		"weekday.Mon": "Mon", "weekday.Tue": "Tue", "weekday.Wed": "Wed", "weekday.Thu": "Thu",
		"weekday.Fri": "Fri", "weekday.Sat": "Sat", "weekday.Sun": "Sun",

		"month.Jan": "Jan", "month.Feb": "Feb", "month.Mar": "Mar", "month.Apr": "Apr",
		"month.May": "May", "month.Jun": "Jun", "month.Jul": "Jul", "month.Aug": "Aug",
		"month.Sep": "Sep", "month.Oct": "Oct", "month.Nov": "Nov", "month.Dec": "Dec",

		"status.active": "Active",
		"status.draft":  "Draft",
		"status.closed": "Closed",

		"decision.survey_not_found":  "This survey does not exist.",
		"decision.data_fetch_error":  "We could not check your access right now. Please try again.",
		"decision.already_completed": "You have already completed this survey.",
		"decision.not_assigned":      "This survey is not assigned to you.",
		"decision.eligible":          "You can take this survey.",
	},
	"zh": {
		"health.ok": "好的",

		"weekday.Mon": "周一", "weekday.Tue": "周二", "weekday.Wed": "周三", "weekday.Thu": "周四",
		"weekday.Fri": "周五", "weekday.Sat": "周六", "weekday.Sun": "周日",

		"month.Jan": "1月", "month.Feb": "2月", "month.Mar": "3月", "month.Apr": "4月",
		"month.May": "5月", "month.Jun": "6月", "month.Jul": "7月", "month.Aug": "8月",
		"month.Sep": "9月", "month.Oct": "10月", "month.Nov": "11月", "month.Dec": "12月",

		"status.active": "进行中",
		"status.draft":  "草稿",
		"status.closed": "已关闭",

		"decision.survey_not_found":  "问卷不存在。",
		"decision.data_fetch_error":  "暂时无法确认访问权限，请稍后重试。",
		"decision.already_completed": "您已完成此问卷。",
		"decision.not_assigned":      "此问卷未分配给您。",
		"decision.eligible":          "您可以填写此问卷。",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
