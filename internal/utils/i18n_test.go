package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
	if got := T("zh", "missing.key"); got != "missing.key" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}

func TestT_Labels(t *testing.T) {
	if got := T("zh", "weekday.Wed"); got != "周三" {
		t.Fatalf("weekday label: %s", got)
	}
	if got := T("en", "status.closed"); got != "Closed" {
		t.Fatalf("status label: %s", got)
	}
	for _, d := range []string{"survey_not_found", "data_fetch_error", "already_completed", "not_assigned", "eligible"} {
		for _, loc := range SupportedLocales {
			if got := T(loc, "decision."+d); got == "decision."+d {
				t.Fatalf("missing %s translation for %s", loc, d)
			}
		}
	}
}
