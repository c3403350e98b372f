package resources

import (
	"bytes"
	"testing"

	"fyne.io/fyne/v2/theme"
)

func TestUIIconResourceVariants(t *testing.T) {
	for _, icon := range []UIIcon{UIIconConnected, UIIconDisconnected, UIIconMidi} {
		dark := UIIconResource(icon, theme.VariantDark)
		light := UIIconResource(icon, theme.VariantLight)
		if dark == nil || light == nil {
			t.Fatalf("expected both variants for %q", icon)
		}
		if dark.Name() == light.Name() {
			t.Fatalf("expected distinct resources for %q, got %q", icon, dark.Name())
		}
		if !bytes.Contains(dark.Content(), []byte("<svg")) {
			t.Fatalf("expected svg content for %q", icon)
		}
	}
}

func TestUIIconResourceUnknown(t *testing.T) {
	if res := UIIconResource(UIIcon("missing"), theme.VariantLight); res != nil {
		t.Fatalf("expected nil for unknown icon, got %q", res.Name())
	}
}

func TestResourcesAreCached(t *testing.T) {
	if UIIconResource(UIIconMidi, theme.VariantDark) != UIIconResource(UIIconMidi, theme.VariantDark) {
		t.Fatalf("expected the same resource instance on repeated lookups")
	}
}

func TestTrayIconResourceFallsBackToDark(t *testing.T) {
	if got, want := TrayIconResource(99), TrayIconResource(theme.VariantDark); got != want {
		t.Fatalf("expected dark fallback, got %v", got)
	}
	if TrayIconResource(theme.VariantLight) == TrayIconResource(theme.VariantDark) {
		t.Fatalf("expected distinct light tray icon")
	}
	if AppIconResource() == nil || len(AppIconResource().Content()) == 0 {
		t.Fatalf("expected app icon content")
	}
}
