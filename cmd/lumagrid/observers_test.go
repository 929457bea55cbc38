package main

import "testing"

func TestImageGeometryFromSettingsDefaults(t *testing.T) {
	scale, width, height, err := imageGeometryFromSettings(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if scale <= 0 || width <= 0 || height <= 0 {
		t.Errorf("scale=%v width=%d height=%d, want all positive defaults", scale, width, height)
	}
}

func TestImageGeometryFromSettingsOverrides(t *testing.T) {
	scale, width, height, err := imageGeometryFromSettings(map[string]string{
		"scale": "20", "width": "800", "height": "600",
	})
	if err != nil {
		t.Fatal(err)
	}
	if scale != 20 || width != 800 || height != 600 {
		t.Errorf("scale=%v width=%d height=%d, want 20/800/600", scale, width, height)
	}
}

func TestImageGeometryFromSettingsRejectsBadScale(t *testing.T) {
	if _, _, _, err := imageGeometryFromSettings(map[string]string{"scale": "not-a-number"}); err == nil {
		t.Fatal("expected an error for a malformed scale")
	}
}

func TestOpenAppendRejectsEmptyPath(t *testing.T) {
	if _, err := openAppend(""); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestBuildSinkRejectsUnknownKind(t *testing.T) {
	a := &app{}
	if _, err := a.buildSink(map[string]string{"sink": "carrier-pigeon"}); err == nil {
		t.Fatal("expected an error for an unknown sink kind")
	}
}

func TestBuildSinkBashRequiresPath(t *testing.T) {
	a := &app{}
	if _, err := a.buildSink(map[string]string{"sink": "bash"}); err == nil {
		t.Fatal("expected an error when bash sink has no path")
	}
}

func TestParseAdHocObserverIgnoresBlankSegments(t *testing.T) {
	name, settings, err := parseAdHocObserver("lobby@sink=file,path=/tmp/x,,fps=5")
	if err != nil {
		t.Fatal(err)
	}
	if name != "lobby" || len(settings) != 3 {
		t.Errorf("name=%q settings=%v", name, settings)
	}
}
